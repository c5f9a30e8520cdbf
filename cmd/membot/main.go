package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssergeev/membot/internal/agent"
	"github.com/ssergeev/membot/internal/bot"
	"github.com/ssergeev/membot/internal/config"
	"github.com/ssergeev/membot/internal/history"
	"github.com/ssergeev/membot/internal/llm"
	"github.com/ssergeev/membot/internal/logger"
	"github.com/ssergeev/membot/internal/prompt"
	"github.com/ssergeev/membot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.History.DBPath, cfg.History.Pairs, log)
	if err != nil {
		log.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("history store initialized", "path", cfg.History.DBPath, "pairs", cfg.History.Pairs)

	completer := llm.NewCompleter(
		llm.NewClient(cfg.LLM),
		cfg.LLM.Model,
		time.Duration(cfg.LLM.RequestTimeoutSeconds)*time.Second,
		cfg.LLM.MaxMessageChars,
		log,
	)
	assembler := &prompt.Assembler{History: store, SystemPrompt: cfg.LLM.SystemPrompt}
	ag := agent.New(assembler, completer, store, log)

	// The HTTP timeout must outlive the long poll.
	tg := telegram.NewClient(
		cfg.Telegram.APIBase+"/bot"+cfg.Telegram.Token,
		time.Duration(cfg.Telegram.PollTimeoutSeconds+10)*time.Second,
	)
	b := bot.New(tg, ag, store, cfg.Chunk.MaxLen, cfg.Telegram.PollTimeoutSeconds, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
