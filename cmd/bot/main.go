package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"anilife_bot/internal/bot"
	"anilife_bot/internal/catalog"
	"anilife_bot/internal/config"
	"anilife_bot/internal/scheduler"
	"anilife_bot/internal/server"
	"anilife_bot/internal/session"
	"anilife_bot/internal/storage"
	"anilife_bot/internal/subscription"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	search, err := catalog.New(&http.Client{Timeout: cfg.RequestTimeout}, cfg.CatalogSearchURL, cfg.RequestTimeout, log)
	if err != nil {
		log.Error("create catalog client", "error", err)
		os.Exit(1)
	}

	seed := subscription.SeedNone
	if cfg.SeedOnSubscribe {
		seed = subscription.SeedCurrent
	}
	subs := subscription.New(store, search, seed, cfg.ResultLimit, log)
	sessions := session.New(cfg.SessionTTL, cfg.SessionMaxChats)

	b, err := bot.New(cfg, store, subs, search, sessions, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(store, search, b, scheduler.Options{
		Interval:      cfg.PollInterval,
		Limit:         cfg.ResultLimit,
		Timeout:       cfg.RequestTimeout,
		OnFailure:     scheduler.FailurePolicy(cfg.SearchFailurePolicy),
		SiteSearchURL: cfg.SiteSearchURL,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "poll_interval", cfg.PollInterval, "seed", seed, "on_search_failure", cfg.SearchFailurePolicy)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	if cfg.HTTPAddr != "" {
		srv := server.New(cfg.HTTPAddr, store, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Error("http server stopped", "error", err)
			}
		}()
	}

	b.Run(ctx)
	cancel()
	wg.Wait()

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
