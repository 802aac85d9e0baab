package bot

import (
	"fmt"

	"github.com/argylelabs/telegpt/internal/relay"
)

func New(cfg Config, orch *relay.Orchestrator) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		return newTelegram(cfg.Token, orch, cfg.OwnerChatID)
	case "discord":
		return newDiscord(cfg.Token, orch)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}
