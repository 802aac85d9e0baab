package config

import "time"

type Config struct {
	LLM     LLMConfig
	Bot     BotConfig
	Relay   RelayConfig
	Archive ArchiveConfig
	Sweep   SweepConfig
}

type LLMConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
}

type BotConfig struct {
	Provider    string
	Token       string
	OwnerChatID int64
}

// RelayConfig carries the per-path model identifiers and limits. Defaults
// can be overridden by telegpt.yml and then by environment.
type RelayConfig struct {
	ChatModel       string `yaml:"chat_model"`
	ProModel        string `yaml:"pro_model"`
	MaxTurns        int    `yaml:"max_turns"`
	ChatMaxTokens   int    `yaml:"chat_max_tokens"`
	ProMaxTokens    int    `yaml:"pro_max_tokens"`
	VisionMaxTokens int    `yaml:"vision_max_tokens"`
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// SweepConfig controls the scheduled clearing of idle transcripts.
type SweepConfig struct {
	Schedule string
	MaxIdle  time.Duration
}
