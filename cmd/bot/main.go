package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xuxing3/JiZhang/internal/ai"
	"github.com/xuxing3/JiZhang/internal/bot"
	"github.com/xuxing3/JiZhang/internal/config"
	"github.com/xuxing3/JiZhang/internal/logger"
	"github.com/xuxing3/JiZhang/internal/service"
	"github.com/xuxing3/JiZhang/internal/store"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.TelegramToken == "" {
		log.Fatal().Msg("TELEGRAM_TOKEN is not configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, cfg.DefaultTZ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer repo.Close(context.Background())

	extractor := ai.NewExtractor(cfg, log)
	if !extractor.Enabled() {
		log.Warn().Msg("No AI provider configured - screenshots will be rejected, text falls back to heuristics")
	}

	svc := service.New(repo, extractor, cfg, log)

	b, err := bot.New(svc, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start Telegram bot")
	}

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Bot stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("Bot exited")
}
