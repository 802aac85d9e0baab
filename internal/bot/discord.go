package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/argylelabs/telegpt/internal/logger"
	"github.com/argylelabs/telegpt/internal/relay"
	"github.com/argylelabs/telegpt/internal/render"
)

type discord struct {
	session *discordgo.Session
	orch    *relay.Orchestrator
	ctx     context.Context
}

func newDiscord(token string, orch *relay.Orchestrator) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	d := &discord{
		session: session,
		orch:    orch,
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Start(ctx context.Context) error {
	d.ctx = ctx

	if err := d.session.Open(); err != nil {
		return err
	}

	logger.Info("discord bot started")

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	userID := fmt.Sprintf("discord:%s", m.Author.ID)
	surface := &dcSurface{session: s, msg: m.Message}

	if len(m.Attachments) > 0 {
		cmd, prompt := parseCaption(m.Content)
		if cmd != cmdVision || prompt == "" {
			return
		}
		logger.Info("attachment received", "user", userID, "caption", truncate(prompt, 50))
		d.orch.Vision(d.ctx, surface, userID, prompt)
		return
	}

	// Discord has no slash registration here; the same text triggers work
	// as plain prefixes.
	cmd, prompt := parseText(m.Content, "")
	switch cmd {
	case cmdChat:
		logger.Info("message received", "user", userID, "text", truncate(prompt, 50))
		d.orch.Chat(d.ctx, surface, userID, prompt)
	case cmdChatPro:
		logger.Info("message received", "user", userID, "text", truncate(prompt, 50), "pro", true)
		d.orch.ChatPro(d.ctx, surface, userID, prompt)
	}
}

type dcSurface struct {
	session *discordgo.Session
	msg     *discordgo.Message
}

func (s *dcSurface) SendPlaceholder(who string) (render.Editor, error) {
	sent, err := s.session.ChannelMessageSendReply(s.msg.ChannelID, who+" ...", s.msg.Reference())
	if err != nil {
		return nil, fmt.Errorf("send placeholder: %w", err)
	}

	return &dcEditor{session: s.session, channelID: s.msg.ChannelID, messageID: sent.ID}, nil
}

func (s *dcSurface) Reply(text string) error {
	_, err := s.session.ChannelMessageSendReply(s.msg.ChannelID, text, s.msg.Reference())
	return err
}

func (s *dcSurface) DownloadPhoto(ctx context.Context) ([]byte, string, error) {
	if len(s.msg.Attachments) == 0 {
		return nil, "", errors.New("no attachment")
	}

	best := s.msg.Attachments[0]
	for _, a := range s.msg.Attachments[1:] {
		if a.Size > best.Size {
			best = a
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", best.URL, nil)
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

// dcEditor edits the placeholder in place. Discord renders standard Markdown
// natively, so the formatted flag only controls the bold author label.
type dcEditor struct {
	session   *discordgo.Session
	channelID string
	messageID string
}

func (e *dcEditor) Edit(who, text string, formatted bool) error {
	body := who + ":\n" + text
	if formatted {
		body = "**" + who + "**:\n" + text
	}

	// Discord accepts identical-content edits, so nothing maps to
	// render.ErrNotModified here.
	_, err := e.session.ChannelMessageEdit(e.channelID, e.messageID, body)
	return err
}
