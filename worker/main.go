package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/competitor-newsletter/internal/config"
	"github.com/DeafMist/competitor-newsletter/internal/dedupe"
	"github.com/DeafMist/competitor-newsletter/internal/elasticsearch"
	"github.com/DeafMist/competitor-newsletter/internal/logger"
	"github.com/DeafMist/competitor-newsletter/internal/metrics"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
)

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := metrics.New()
	proc := &processor{
		log:      log,
		saver:    newsfeed.New(cfg.Service.URL, cfg.Service.Timeout, log),
		cache:    dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		metrics:  m,
		keywords: cfg.KeywordLimit,
		minLen:   cfg.KeywordMinLength,
	}

	if cfg.Archive.Enabled {
		esClient, err := elasticsearch.Dial(ctx, cfg.Archive.Addr, cfg.Archive.Index, log, 10)
		if err != nil {
			log.Error("connect elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		if err := esClient.EnsureIndex(ctx); err != nil {
			log.Error("ensure archive index", slog.Any("err", err))
			os.Exit(1)
		}
		proc.archive = esClient
	}

	go func() {
		if err := m.Serve(ctx, cfg.MetricsAddr, log); err != nil {
			log.Error("metrics server", slog.Any("err", err))
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.Kafka.Topic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	dlq := &deadLetter{log: log, writer: dlqWriter, attempts: cfg.MaxRetries, backoff: time.Second}

	log.Info("worker started",
		slog.String("topic", cfg.Kafka.Topic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.Bool("archive", cfg.Archive.Enabled),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		err = proc.process(ctx, msg)
		m.WorkerEvent(err)
		if err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !dlq.send(ctx, msg, err) {
				if ctx.Err() != nil {
					return
				}
				// Left uncommitted, but it may still be lost once a later message on this
				// partition commits past its offset.
				continue
			}
			m.DLQPublished.Inc()
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

