package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/competitor-newsletter/internal/compose"
	"github.com/DeafMist/competitor-newsletter/internal/config"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/elasticsearch"
	"github.com/DeafMist/competitor-newsletter/internal/logger"
	"github.com/DeafMist/competitor-newsletter/internal/metrics"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/notify"
	"github.com/DeafMist/competitor-newsletter/internal/share"
	"github.com/DeafMist/competitor-newsletter/internal/storage"
	"github.com/DeafMist/competitor-newsletter/internal/viewstate"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

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
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer backend.Close()

	m := metrics.New()
	bus := notify.NewBus()
	var notifier notify.Notifier = bus
	if rb, ok := backend.(*storage.Redis); ok && cfg.Store.UpdatesChannel != "" {
		bridge := notify.NewRedisBridge(rb.Client(), cfg.Store.UpdatesChannel, log)
		notifier = notify.Multi{bus, bridge}
		go func() {
			if err := bridge.Relay(ctx, bus, nil); err != nil {
				log.Error("relay change signals", slog.Any("err", err))
			}
		}()
	}

	store := curation.NewStore(backend,
		curation.WithKey(cfg.Store.ItemsKey),
		curation.WithNotifier(notifier),
		curation.WithObserver(m),
		curation.WithLogger(log),
	)
	if _, err := store.Load(ctx); err != nil {
		log.Error("load newsletter items", slog.Any("err", err))
		os.Exit(1)
	}

	badge := curation.NewBadge(store, log, curation.WithGauge(m.Collection))
	signals, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go badge.Watch(ctx, signals)

	feed := newsfeed.New(cfg.Service.URL, cfg.Service.Timeout, log)

	sinks, closeSinks := itemSinks(cfg, feed, log)
	defer closeSinks()
	dispatcher := curation.NewDispatcher(log, cfg.SinkTimeout, sinks...)
	defer dispatcher.Wait()

	composer := compose.NewComposer(
		compose.HeaderFromLocation(cfg.HeaderImage, &http.Client{Timeout: 10 * time.Second}),
		compose.WithLogger(log),
	)
	shares := share.NewRegistry(func() *share.Workflow {
		return share.New(store, composer, feed,
			share.WithCloseDelay(cfg.ShareCloseDelay),
			share.WithObserver(m),
			share.WithLogger(log),
		)
	})
	go sweepShares(ctx, shares, cfg.ShareSessionTTL, log)

	srv := &server{
		log:         log,
		feed:        feed,
		competitors: cfg.Competitors,
		store:       store,
		dispatcher:  dispatcher,
		views:       viewstate.New(backend, cfg.Store.ViewKey),
		shares:      shares,
		metrics:     m,
		defaultPage: cfg.DefaultPage,
		maxPage:     cfg.MaxPage,
	}

	if cfg.Archive.Enabled {
		esClient, err := elasticsearch.Dial(ctx, cfg.Archive.Addr, cfg.Archive.Index, log, 5)
		if err != nil {
			// The archive is optional for browsing and sharing.
			log.Warn("archive unavailable, /archive disabled", slog.Any("err", err))
		} else {
			srv.archive = esClient
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("store", cfg.Store.Backend),
			slog.String("item_sink", cfg.ItemSink),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// itemSinks builds the forwarders for newly curated items per ITEM_SINK.
func itemSinks(cfg *config.API, feed *newsfeed.Client, log *slog.Logger) ([]curation.Sink, func()) {
	switch cfg.ItemSink {
	case "http":
		return []curation.Sink{curation.HTTPSink{Client: feed}}, func() {}
	case "kafka":
		w := &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.Hash{},
		}
		log.Info("forwarding curated items to kafka", slog.String("topic", cfg.Kafka.Topic))
		return []curation.Sink{curation.NewKafkaSink(w)}, func() {
			if err := w.Close(); err != nil {
				log.Warn("close kafka writer", slog.Any("err", err))
			}
		}
	default:
		return nil, func() {}
	}
}

func sweepShares(ctx context.Context, shares *share.Registry, ttl time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(max(ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := shares.Sweep(ttl); n > 0 {
				log.Info("expired share sessions removed", slog.Int("count", n))
			}
		}
	}
}
