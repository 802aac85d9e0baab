// Package markdown converts model output (standard Markdown) into Telegram
// MarkdownV2, the dialect required when sending formatted edits through the
// bot API. Telegram treats almost every punctuation character as markup, so
// anything not explicitly emitted as an entity must be escaped.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

// Decorations prepended during conversion, matching the bot's presentation.
const (
	headSymbol = "📌"
	linkSymbol = "🔗"
)

var escapes = map[byte]bool{
	'\\': true,
	'_':  true,
	'*':  true,
	'[':  true,
	']':  true,
	'(':  true,
	')':  true,
	'~':  true,
	'`':  true,
	'>':  true,
	'#':  true,
	'+':  true,
	'-':  true,
	'=':  true,
	'|':  true,
	'{':  true,
	'}':  true,
	'.':  true,
	'!':  true,
}

// Escape backslash-escapes every MarkdownV2 special character in text.
func Escape(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escapes[ch] {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	linkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	boldRe    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	strikeRe  = regexp.MustCompile(`~~([^~]+)~~`)
	italicRe  = regexp.MustCompile(`(^|[^*\\])\*([^*\n]+)\*`)
)

// Convert rewrites a complete Markdown document as Telegram MarkdownV2.
// Headings become bold lines prefixed with the head symbol, links keep their
// target and gain the link symbol, and fenced code blocks pass through with
// only the characters Telegram requires escaped inside them.
func Convert(text string) string {
	var out []string
	var fence []string
	inFence := false
	fenceLang := ""

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				inFence = true
				fenceLang = strings.TrimPrefix(trimmed, "```")
				fence = fence[:0]
			} else {
				inFence = false
				out = append(out, "```"+fenceLang)
				out = append(out, fence...)
				out = append(out, "```")
			}
			continue
		}

		if inFence {
			fence = append(fence, escapeCode(line))
			continue
		}

		out = append(out, convertLine(line))
	}

	// An unterminated fence is still model output; close it rather than
	// dropping the content.
	if inFence {
		out = append(out, "```"+fenceLang)
		out = append(out, fence...)
		out = append(out, "```")
	}

	return strings.Join(out, "\n")
}

// escapeCode escapes the two characters that are special inside pre/code
// entities.
func escapeCode(line string) string {
	line = strings.ReplaceAll(line, `\`, `\\`)
	return strings.ReplaceAll(line, "`", "\\`")
}

func convertLine(line string) string {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return headSymbol + " *" + convertInline(m[2]) + "*"
	}
	return convertInline(line)
}

// convertInline maps standard Markdown emphasis onto MarkdownV2 entities and
// escapes everything in between. Inline code spans are cut out first so
// their contents are never reinterpreted as markup.
func convertInline(text string) string {
	var b strings.Builder

	for len(text) > 0 {
		start := strings.IndexByte(text, '`')
		if start < 0 {
			b.WriteString(convertSpan(text))
			break
		}
		end := strings.IndexByte(text[start+1:], '`')
		if end < 0 {
			b.WriteString(convertSpan(text))
			break
		}

		b.WriteString(convertSpan(text[:start]))
		b.WriteString("`")
		b.WriteString(escapeCode(text[start+1 : start+1+end]))
		b.WriteString("`")
		text = text[start+end+2:]
	}

	return b.String()
}

// marker bytes unused in normal text; they bracket indexed spots where
// converted entities were cut out before the escaping pass.
const (
	marker    = "\x00"
	markerEnd = "\x01"
)

func convertSpan(text string) string {
	var cut []string
	stash := func(s string) string {
		cut = append(cut, s)
		return fmt.Sprintf("%s%d%s", marker, len(cut)-1, markerEnd)
	}

	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		label := Escape(sub[1])
		url := strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(sub[2])
		return stash(linkSymbol + "[" + label + "](" + url + ")")
	})
	text = boldRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := boldRe.FindStringSubmatch(m)
		return stash("*" + Escape(sub[1]) + "*")
	})
	text = strikeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := strikeRe.FindStringSubmatch(m)
		return stash("~" + Escape(sub[1]) + "~")
	})
	text = italicRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := italicRe.FindStringSubmatch(m)
		return sub[1] + stash("_"+Escape(sub[2])+"_")
	})

	escaped := Escape(text)
	for i, c := range cut {
		escaped = strings.Replace(escaped, fmt.Sprintf("%s%d%s", marker, i, markerEnd), c, 1)
	}
	return escaped
}
