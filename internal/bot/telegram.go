package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/argylelabs/telegpt/internal/logger"
	"github.com/argylelabs/telegpt/internal/markdown"
	"github.com/argylelabs/telegpt/internal/relay"
	"github.com/argylelabs/telegpt/internal/render"
)

func newTelegram(token string, orch *relay.Orchestrator, ownerChatID int64) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &telegram{api: api, orch: orch, ownerChatID: ownerChatID}, nil
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	logger.Info("telegram bot started", "username", t.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			go t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	userID := fmt.Sprintf("telegram:%d", msg.From.ID)
	surface := &tgSurface{api: t.api, msg: msg}

	if len(msg.Photo) > 0 {
		cmd, prompt := parseCaption(msg.Caption)
		if cmd != cmdVision || prompt == "" {
			return
		}
		logger.Info("photo received", "user", userID, "caption", truncate(prompt, 50))
		t.orch.Vision(ctx, surface, userID, prompt)
		return
	}

	cmd, prompt := parseText(msg.Text, t.api.Self.UserName)
	switch cmd {
	case cmdChat:
		logger.Info("message received", "user", userID, "text", truncate(prompt, 50))
		t.orch.Chat(ctx, surface, userID, prompt)
	case cmdChatPro:
		logger.Info("message received", "user", userID, "text", truncate(prompt, 50), "pro", true)
		t.orch.ChatPro(ctx, surface, userID, prompt)
	case cmdStatus:
		if t.ownerChatID != 0 && msg.Chat.ID == t.ownerChatID {
			if err := surface.Reply(hostStatus()); err != nil {
				logger.Error("status reply failed", "error", err)
			}
		}
	}
}

// tgSurface binds one inbound message to the relay's platform surface.
type tgSurface struct {
	api *tgbotapi.BotAPI
	msg *tgbotapi.Message
}

func (s *tgSurface) SendPlaceholder(who string) (render.Editor, error) {
	reply := tgbotapi.NewMessage(s.msg.Chat.ID, who+" ...")
	reply.ReplyToMessageID = s.msg.MessageID

	sent, err := s.api.Send(reply)
	if err != nil {
		return nil, fmt.Errorf("send placeholder: %w", err)
	}

	return &tgEditor{api: s.api, chatID: s.msg.Chat.ID, messageID: sent.MessageID}, nil
}

func (s *tgSurface) Reply(text string) error {
	reply := tgbotapi.NewMessage(s.msg.Chat.ID, text)
	reply.ReplyToMessageID = s.msg.MessageID

	_, err := s.api.Send(reply)
	return err
}

func (s *tgSurface) DownloadPhoto(ctx context.Context) ([]byte, string, error) {
	if len(s.msg.Photo) == 0 {
		return nil, "", errors.New("no photo attached")
	}

	// Telegram reports several resolutions of the same photo; take the
	// largest by file size.
	best := s.msg.Photo[0]
	for _, p := range s.msg.Photo[1:] {
		if p.FileSize > best.FileSize {
			best = p
		}
	}

	file, err := s.api.GetFile(tgbotapi.FileConfig{FileID: best.FileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", file.Link(s.api.Token), nil)
	if err != nil {
		return nil, "", err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, "", err
	}

	return data, http.DetectContentType(data), nil
}

// tgEditor edits the placeholder in place. Formatted edits are converted to
// MarkdownV2 here; Telegram rejects unescaped punctuation otherwise.
type tgEditor struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	messageID int
}

func (e *tgEditor) Edit(who, text string, formatted bool) error {
	body := who + ":\n" + text
	edit := tgbotapi.NewEditMessageText(e.chatID, e.messageID, body)

	if formatted {
		edit.Text = "*" + markdown.Escape(who) + "*:\n" + markdown.Convert(text)
		edit.ParseMode = "MarkdownV2"
	}

	_, err := e.api.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return render.ErrNotModified
	}

	return err
}
