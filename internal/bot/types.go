package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/argylelabs/telegpt/internal/relay"
)

type Bot interface {
	Start(ctx context.Context) error
}

type Config struct {
	Provider    string
	Token       string
	OwnerChatID int64 // Telegram: chat allowed to run the status command
}

type telegram struct {
	api         *tgbotapi.BotAPI
	orch        *relay.Orchestrator
	ownerChatID int64
}
