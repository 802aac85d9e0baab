package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLLMConfigOpenAI(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_BASE", "https://proxy.example.com/v1")

	cfg, err := loadLLMConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Provider != "openai" {
		t.Errorf("expected default provider openai, got %s", cfg.Provider)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("api key mismatch: %s", cfg.APIKey)
	}
	if cfg.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("base url mismatch: %s", cfg.BaseURL)
	}
}

func TestLoadLLMConfigMissingKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := loadLLMConfig(); err == nil {
		t.Error("expected error when OPENAI_API_KEY is missing")
	}
}

func TestLoadLLMConfigClaude(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := loadLLMConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Provider != "claude" {
		t.Errorf("expected claude, got %s", cfg.Provider)
	}
}

func TestLoadBotConfigTelegram(t *testing.T) {
	t.Setenv("BOT_PROVIDER", "")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("OWNER_CHAT_ID", "42")

	cfg, err := loadBotConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Provider != "telegram" {
		t.Errorf("expected default provider telegram, got %s", cfg.Provider)
	}
	if cfg.Token != "123:abc" {
		t.Errorf("token mismatch: %s", cfg.Token)
	}
	if cfg.OwnerChatID != 42 {
		t.Errorf("owner chat id mismatch: %d", cfg.OwnerChatID)
	}
}

func TestLoadBotConfigMissingToken(t *testing.T) {
	t.Setenv("BOT_PROVIDER", "telegram")
	t.Setenv("TELEGRAM_TOKEN", "")

	if _, err := loadBotConfig(); err == nil {
		t.Error("expected error when TELEGRAM_TOKEN is missing")
	}
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	t.Setenv("TELEGPT_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("CHATGPT_MODEL", "")
	t.Setenv("CHATGPT_PRO_MODEL", "")
	t.Setenv("MAX_TURNS", "")

	cfg, err := loadRelayConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ChatModel != "gpt-3.5-turbo" || cfg.ProModel != "gpt-4-turbo" {
		t.Errorf("default models mismatch: %+v", cfg)
	}
	if cfg.MaxTurns != 10 {
		t.Errorf("expected default max turns 10, got %d", cfg.MaxTurns)
	}
}

func TestLoadRelayConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telegpt.yml")
	data := "chat_model: local-chat\npro_model: local-pro\nmax_turns: 6\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TELEGPT_CONFIG", path)
	t.Setenv("CHATGPT_MODEL", "")
	t.Setenv("CHATGPT_PRO_MODEL", "")
	t.Setenv("MAX_TURNS", "")

	cfg, err := loadRelayConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ChatModel != "local-chat" || cfg.ProModel != "local-pro" {
		t.Errorf("file models not applied: %+v", cfg)
	}
	if cfg.MaxTurns != 6 {
		t.Errorf("expected max turns 6 from file, got %d", cfg.MaxTurns)
	}
	// Untouched values keep defaults.
	if cfg.ChatMaxTokens != 1024 {
		t.Errorf("expected default chat max tokens, got %d", cfg.ChatMaxTokens)
	}
}

func TestLoadRelayConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telegpt.yml")
	if err := os.WriteFile(path, []byte("chat_model: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TELEGPT_CONFIG", path)
	t.Setenv("CHATGPT_MODEL", "from-env")

	cfg, err := loadRelayConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ChatModel != "from-env" {
		t.Errorf("env override not applied: %s", cfg.ChatModel)
	}
}

func TestLoadSweepConfig(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "")
	t.Setenv("SWEEP_MAX_IDLE", "90m")

	cfg := loadSweepConfig()
	if cfg.Schedule != "@every 30m" {
		t.Errorf("expected default schedule, got %s", cfg.Schedule)
	}
	if cfg.MaxIdle.Minutes() != 90 {
		t.Errorf("expected 90m idle, got %s", cfg.MaxIdle)
	}
}
