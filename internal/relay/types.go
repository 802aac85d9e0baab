package relay

import (
	"context"

	"github.com/argylelabs/telegpt/internal/render"
)

// Presentation labels; they also select the model and request shape for the
// exchange.
const (
	WhoChat   = "ChatGPT"
	WhoPro    = "ChatGPT Pro"
	WhoVision = "ChatGPT Vision"
)

type Config struct {
	ChatModel       string
	ProModel        string
	MaxTurns        int
	ChatMaxTokens   int
	ProMaxTokens    int
	VisionMaxTokens int
}

func DefaultConfig() Config {
	return Config{
		ChatModel:       "gpt-3.5-turbo",
		ProModel:        "gpt-4-turbo",
		MaxTurns:        10,
		ChatMaxTokens:   1024,
		ProMaxTokens:    2048,
		VisionMaxTokens: 1024,
	}
}

// Surface is the slice of the messaging platform one exchange talks to: the
// inbound message's chat, reply facilities, and (for photo messages) the
// attachment bytes. Implemented per-message by the bot transports.
type Surface interface {
	// SendPlaceholder sends the immediate "thinking" reply and returns an
	// editor bound to it. Must be called before the remote completion so
	// the user gets feedback straight away.
	SendPlaceholder(who string) (render.Editor, error)

	// Reply sends a standalone reply to the inbound message.
	Reply(text string) error

	// DownloadPhoto fetches the highest-resolution variant of the
	// message's photo attachment. Only meaningful on photo messages.
	DownloadPhoto(ctx context.Context) (data []byte, mediaType string, err error)
}
