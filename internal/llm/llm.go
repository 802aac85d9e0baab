package llm

import "fmt"

// requestTimeout bounds the remote call: overall for blocking completions,
// connection/first-byte for streams.
const requestTimeout = 20 // seconds

func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "claude":
		return newClaude(cfg.APIKey), nil
	case "", "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return newOpenAICompatible(cfg.APIKey, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
