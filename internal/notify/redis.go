package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/DeafMist/competitor-newsletter/internal/logger"
)

// RedisBridge publishes the signal on a Redis channel and relays signals published by other
// processes into a local Bus.
type RedisBridge struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewRedisBridge uses channel, or Topic when channel is empty.
func NewRedisBridge(client *redis.Client, channel string, log *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = Topic
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RedisBridge{client: client, channel: channel, log: log}
}

func (r *RedisBridge) Notify(ctx context.Context) error {
	if err := r.client.Publish(ctx, r.channel, "").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Relay forwards remote signals into bus until ctx is done. ready, when non-nil, is closed
// once the subscription is active.
func (r *RedisBridge) Relay(ctx context.Context, bus *Bus, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			r.log.Debug("relay change signal", slog.String("channel", r.channel))
			_ = bus.Notify(ctx)
		}
	}
}
