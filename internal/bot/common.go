package bot

import "strings"

// maxImageSize caps photo downloads (20MB).
const maxImageSize = 20 * 1024 * 1024

type command int

const (
	cmdNone command = iota
	cmdChat
	cmdChatPro
	cmdVision
	cmdStatus
)

// parseText maps a text message body to a relay path. Four trigger forms:
// the slash commands /chatgpt and /chatgpt_pro (with optional @botname
// suffix) and the colon prefixes "chatgpt:" / "chatgpt_pro:". Everything
// else is ignored. The returned prompt has the trigger stripped.
func parseText(text, botName string) (command, string) {
	trimmed := strings.TrimSpace(text)

	if cmd, prompt, ok := parseSlash(trimmed, "chatgpt_pro", botName); ok {
		return cmd, prompt
	}
	if strings.HasPrefix(trimmed, "chatgpt_pro:") {
		return cmdChatPro, strings.TrimSpace(strings.TrimPrefix(trimmed, "chatgpt_pro:"))
	}
	if _, prompt, ok := parseSlash(trimmed, "chatgpt", botName); ok {
		return cmdChat, prompt
	}
	if strings.HasPrefix(trimmed, "chatgpt:") {
		return cmdChat, strings.TrimSpace(strings.TrimPrefix(trimmed, "chatgpt:"))
	}
	if cmd, _, ok := parseSlash(trimmed, "status", botName); ok && cmd != cmdNone {
		return cmdStatus, ""
	}

	return cmdNone, ""
}

func parseSlash(text, name, botName string) (command, string, bool) {
	for _, form := range []string{"/" + name + "@" + botName, "/" + name} {
		if text == form {
			return commandFor(name), "", true
		}
		if strings.HasPrefix(text, form+" ") {
			return commandFor(name), strings.TrimSpace(strings.TrimPrefix(text, form)), true
		}
	}
	return cmdNone, "", false
}

func commandFor(name string) command {
	switch name {
	case "chatgpt":
		return cmdChat
	case "chatgpt_pro":
		return cmdChatPro
	case "status":
		return cmdStatus
	default:
		return cmdNone
	}
}

// parseCaption maps a photo caption to the vision path when it carries one
// of the trigger prefixes.
func parseCaption(caption string) (command, string) {
	trimmed := strings.TrimSpace(caption)

	for _, prefix := range []string{"chatgpt:", "/chatgpt"} {
		if strings.HasPrefix(trimmed, prefix) {
			return cmdVision, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
	}

	return cmdNone, ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max] + "..."
}
