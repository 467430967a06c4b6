package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const maxDialDelay = 30 * time.Second

// Dial creates a client and pings it until Elasticsearch answers, backing off exponentially
// from two seconds between attempts.
func Dial(ctx context.Context, addr, index string, logger *slog.Logger, maxRetries int) (*Client, error) {
	return dial(ctx, addr, index, logger, maxRetries, 2*time.Second)
}

func dial(ctx context.Context, addr, index string, logger *slog.Logger, maxRetries int, retryDelay time.Duration) (*Client, error) {
	c, err := New(addr, index, logger)
	if err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var pingErr error
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = c.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			c.log.Info("connected to elasticsearch", slog.String("addr", addr))
			return c, nil
		}
		if i == maxRetries-1 {
			break
		}

		c.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", pingErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, maxDialDelay)
	}

	return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", maxRetries, pingErr)
}
