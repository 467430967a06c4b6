package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/compose"
	"github.com/DeafMist/competitor-newsletter/internal/config"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/logger"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.New("newsletterctl")
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	backend, err := storage.Open(storage.Options{
		Kind: cfg.Store.Backend,
		Path: cfg.Store.Path,
		Redis: storage.RedisConfig{
			Address:  cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		},
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	feed := newsfeed.New(cfg.Service.URL, cfg.Service.Timeout, log)
	a := &app{
		log:   log,
		feed:  feed,
		store: curation.NewStore(backend, curation.WithKey(cfg.Store.ItemsKey), curation.WithLogger(log)),
		composer: compose.NewComposer(
			compose.HeaderFromLocation(cfg.HeaderImage, &http.Client{Timeout: 10 * time.Second}),
			compose.WithLogger(log),
		),
		sender:      feed,
		competitors: cfg.Competitors,
		minDisplay:  cfg.LoadingMinDisplay,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return newRootCmd(a).ExecuteContext(ctx)
}
