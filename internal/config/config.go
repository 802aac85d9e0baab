package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultRelayFile = "telegpt.yml"

func Load() (*Config, error) {
	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	botConfig, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	relayConfig, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		LLM:     llmConfig,
		Bot:     botConfig,
		Relay:   relayConfig,
		Archive: loadArchiveConfig(),
		Sweep:   loadSweepConfig(),
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	apiKey, err := getAPIKey(provider)
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		BaseURL:  os.Getenv("OPENAI_API_BASE"),
	}, nil
}

func getAPIKey(provider string) (string, error) {
	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		return key, nil
	case "claude":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return key, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
}

func loadBotConfig() (BotConfig, error) {
	provider := os.Getenv("BOT_PROVIDER")
	if provider == "" {
		provider = "telegram"
	}

	var token string
	switch provider {
	case "telegram":
		token = os.Getenv("TELEGRAM_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("TELEGRAM_TOKEN not set")
		}
	case "discord":
		token = os.Getenv("DISCORD_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("DISCORD_TOKEN not set")
		}
	default:
		return BotConfig{}, fmt.Errorf("unknown BOT_PROVIDER: %s", provider)
	}

	var ownerChatID int64
	if id, err := strconv.ParseInt(os.Getenv("OWNER_CHAT_ID"), 10, 64); err == nil {
		ownerChatID = id
	}

	return BotConfig{
		Provider:    provider,
		Token:       token,
		OwnerChatID: ownerChatID,
	}, nil
}

// loadRelayConfig layers defaults, the optional telegpt.yml file, and
// environment overrides, in that order.
func loadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		ChatModel:       "gpt-3.5-turbo",
		ProModel:        "gpt-4-turbo",
		MaxTurns:        10,
		ChatMaxTokens:   1024,
		ProMaxTokens:    2048,
		VisionMaxTokens: 1024,
	}

	path := os.Getenv("TELEGPT_CONFIG")
	if path == "" {
		path = defaultRelayFile
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RelayConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if m := os.Getenv("CHATGPT_MODEL"); m != "" {
		cfg.ChatModel = m
	}
	if m := os.Getenv("CHATGPT_PRO_MODEL"); m != "" {
		cfg.ProModel = m
	}
	if n, err := strconv.Atoi(os.Getenv("MAX_TURNS")); err == nil && n > 0 {
		cfg.MaxTurns = n
	}

	return cfg, nil
}

func loadArchiveConfig() ArchiveConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return ArchiveConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
}

func loadSweepConfig() SweepConfig {
	schedule := os.Getenv("SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 30m"
	}

	maxIdle := 6 * time.Hour
	if d, err := time.ParseDuration(os.Getenv("SWEEP_MAX_IDLE")); err == nil && d > 0 {
		maxIdle = d
	}

	return SweepConfig{
		Schedule: schedule,
		MaxIdle:  maxIdle,
	}
}
