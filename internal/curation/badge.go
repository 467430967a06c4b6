package curation

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
)

// BadgeLabel renders a collection size for a count badge: empty for zero, capped at "99+".
func BadgeLabel(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	default:
		return strconv.Itoa(n)
	}
}

// Counter is anything that can report the persisted collection size.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Gauge receives the collection size after every refresh. prometheus.Gauge satisfies it.
type Gauge interface {
	Set(float64)
}

// Badge tracks the collection size for a view that does not own the store. It re-reads
// storage every time the change signal fires.
type Badge struct {
	counter Counter
	count   atomic.Int64
	gauge   Gauge
	log     *slog.Logger
}

// BadgeOption configures a Badge.
type BadgeOption func(*Badge)

// WithGauge mirrors every refreshed count into g.
func WithGauge(g Gauge) BadgeOption { return func(b *Badge) { b.gauge = g } }

// NewBadge creates a badge reading through counter.
func NewBadge(counter Counter, logger *slog.Logger, opts ...BadgeOption) *Badge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Badge{counter: counter, log: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh re-reads the count from storage.
func (b *Badge) Refresh(ctx context.Context) {
	n, err := b.counter.Count(ctx)
	if err != nil {
		b.log.Warn("refresh newsletter badge", slog.Any("err", err))
		return
	}
	b.count.Store(int64(n))
	if b.gauge != nil {
		b.gauge.Set(float64(n))
	}
}

// Watch refreshes once, then on every signal until ctx is done.
func (b *Badge) Watch(ctx context.Context, signals <-chan struct{}) {
	b.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			b.Refresh(ctx)
		}
	}
}

// Count is the last observed size.
func (b *Badge) Count() int {
	return int(b.count.Load())
}

// Label is the rendered badge text.
func (b *Badge) Label() string {
	return BadgeLabel(b.Count())
}
