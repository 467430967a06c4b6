// Package notify carries the payload-less "newsletter-updated" signal to observers that do
// not share in-memory state with the mutator, such as a count badge in another view.
package notify

import (
	"context"
	"sync"
)

// Topic is the name of the change signal.
const Topic = "newsletter-updated"

// Notifier broadcasts the change signal.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Bus fans the signal out to in-process subscribers. Signals coalesce: a subscriber that has
// not drained its channel yet receives one pending signal, not one per mutation.
type Bus struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan struct{}]struct{})}
}

// Subscribe returns a signal channel and a function that detaches it.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

// Notify never blocks and never fails.
func (b *Bus) Notify(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Multi notifies several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
