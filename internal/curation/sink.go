package curation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/competitor-newsletter/internal/models"
)

// Sink receives newly curated items on a best-effort basis. Local persistence stays
// authoritative; sink failures are only logged.
type Sink interface {
	Save(ctx context.Context, item models.CurationItem) error
}

// ItemSaver is the remote service call behind HTTPSink.
type ItemSaver interface {
	SaveItem(ctx context.Context, item models.CurationItem) error
}

// HTTPSink posts items straight to the remote add_newsletter_item endpoint.
type HTTPSink struct {
	Client ItemSaver
}

func (s HTTPSink) Save(ctx context.Context, item models.CurationItem) error {
	return s.Client.SaveItem(ctx, item)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes items to the item topic; the worker forwards them.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink wraps a kafka writer.
func NewKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Save(ctx context.Context, item models.CurationItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(item.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "curated_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish item %s: %w", item.ID, err)
	}
	return nil
}

// Dispatcher fans newly added items out to sinks in the background.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher bounds every sink call by timeout.
func NewDispatcher(logger *slog.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, log: logger}
}

// Dispatch returns immediately; failures are logged.
func (d *Dispatcher) Dispatch(items []models.CurationItem) {
	if d == nil {
		return
	}
	for _, sink := range d.sinks {
		for _, item := range items {
			d.wg.Add(1)
			go func(sink Sink, item models.CurationItem) {
				defer d.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
				defer cancel()
				if err := sink.Save(ctx, item); err != nil {
					d.log.Warn("save newsletter item to sink failed",
						slog.String("id", item.ID), slog.Any("err", err))
				}
			}(sink, item)
		}
	}
}

// Wait blocks until in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
