package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/argylelabs/telegpt/internal/bot"
	"github.com/argylelabs/telegpt/internal/config"
	"github.com/argylelabs/telegpt/internal/history"
	"github.com/argylelabs/telegpt/internal/llm"
	"github.com/argylelabs/telegpt/internal/logger"
	"github.com/argylelabs/telegpt/internal/relay"
	"github.com/argylelabs/telegpt/internal/storage"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		logger.Fatal("failed to create llm client", "error", err)
	}

	store := history.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archive *storage.Client
	if cfg.Archive.Enabled {
		archive, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to create archive client", "error", err)
		}
		if err := archive.Init(ctx); err != nil {
			logger.Fatal("failed to init archive bucket", "error", err)
		}
		logger.Info("vision archive enabled", "endpoint", cfg.Archive.Endpoint)
	}

	orch := relay.New(store, client, archive, relay.Config{
		ChatModel:       cfg.Relay.ChatModel,
		ProModel:        cfg.Relay.ProModel,
		MaxTurns:        cfg.Relay.MaxTurns,
		ChatMaxTokens:   cfg.Relay.ChatMaxTokens,
		ProMaxTokens:    cfg.Relay.ProMaxTokens,
		VisionMaxTokens: cfg.Relay.VisionMaxTokens,
	})

	b, err := bot.New(bot.Config{
		Provider:    cfg.Bot.Provider,
		Token:       cfg.Bot.Token,
		OwnerChatID: cfg.Bot.OwnerChatID,
	}, orch)
	if err != nil {
		logger.Fatal("failed to create bot", "error", err)
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Sweep.Schedule, func() {
		if n := store.SweepIdle(cfg.Sweep.MaxIdle); n > 0 {
			logger.Info("idle transcripts cleared", "count", n)
		}
	}); err != nil {
		logger.Fatal("invalid sweep schedule", "schedule", cfg.Sweep.Schedule, "error", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("telegpt starting", "bot", cfg.Bot.Provider, "llm", cfg.LLM.Provider)

	if err := b.Start(ctx); err != nil && err != context.Canceled {
		logger.Fatal("bot stopped", "error", err)
	}
}
