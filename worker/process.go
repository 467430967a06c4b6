package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/competitor-newsletter/internal/dedupe"
	"github.com/DeafMist/competitor-newsletter/internal/metrics"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/processing"
)

var errInvalidItem = errors.New("invalid item event")

type itemSaver interface {
	SaveItem(ctx context.Context, item models.CurationItem) error
}

type itemArchiver interface {
	IndexItem(ctx context.Context, item models.ArchivedItem) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// processor forwards one item event to the remote service and the archive.
type processor struct {
	log      *slog.Logger
	saver    itemSaver
	archive  itemArchiver
	cache    *dedupe.Cache
	metrics  *metrics.Metrics
	keywords int
	minLen   int
}

func (p *processor) process(ctx context.Context, msg kafka.Message) error {
	var item models.CurationItem
	if err := json.Unmarshal(msg.Value, &item); err != nil {
		return fmt.Errorf("%w: %w", errInvalidItem, err)
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" || strings.TrimSpace(item.Company) == "" {
		return fmt.Errorf("%w: id and company are required", errInvalidItem)
	}

	key := dedupe.Key(item)
	if !p.cache.Claim(key) {
		p.metrics.DuplicatesSkipped.Inc()
		p.log.Debug("duplicate item event", slog.String("id", item.ID))
		return nil
	}

	if err := p.forward(ctx, item, curatedAt(msg)); err != nil {
		p.cache.Forget(key)
		return err
	}

	p.log.Info("forwarded newsletter item", slog.String("id", item.ID), slog.String("company", item.Company))
	return nil
}

func (p *processor) forward(ctx context.Context, item models.CurationItem, at time.Time) error {
	if err := p.saver.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("save item %s: %w", item.ID, err)
	}
	if p.archive == nil {
		return nil
	}
	if err := p.archive.IndexItem(ctx, p.archived(item, at)); err != nil {
		return fmt.Errorf("archive item %s: %w", item.ID, err)
	}
	return nil
}

func (p *processor) archived(item models.CurationItem, at time.Time) models.ArchivedItem {
	cleaned := processing.CleanText(item.Content)
	return models.ArchivedItem{
		CurationItem: item,
		ArchivedAt:   at,
		Keywords:     processing.ExtractKeywords(item.Title+" "+cleaned, p.keywords, p.minLen),
		URLs:         processing.ExtractURLs(item.Content),
	}
}

// curatedAt reads the curated_at header set by the API sink, defaulting to now.
func curatedAt(msg kafka.Message) time.Time {
	for _, h := range msg.Headers {
		if h.Key == "curated_at" {
			if ts := parseTimestamp(string(h.Value)); !ts.IsZero() {
				return ts.UTC()
			}
		}
	}
	return time.Now().UTC()
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, f := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}

// deadLetter writes failed events to the DLQ topic with exponential backoff.
type deadLetter struct {
	log      *slog.Logger
	writer   messageWriter
	attempts int
	backoff  time.Duration
}

// send reports whether the event reached the DLQ; only then may the offset be committed.
func (d *deadLetter) send(ctx context.Context, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	attempts := d.attempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := range attempts {
		err := d.writer.WriteMessages(ctx, dlqMsg)
		if err == nil {
			d.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		if attempt == attempts-1 {
			d.log.Error("DLQ write exhausted retries", slog.Any("err", err))
			break
		}

		wait := d.backoff << uint(attempt)
		d.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
