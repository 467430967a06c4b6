// Package curation holds the newsletter collection: the items a user selected from the
// competitor feed, persisted in full under one storage key.
package curation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DeafMist/competitor-newsletter/internal/logger"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/notify"
	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

// DefaultKey is the storage key of the collection.
const DefaultKey = "newsletterItems"

// Observer receives store activity; metrics implement it.
type Observer interface {
	ItemsAdded(n int)
	ItemRemoved()
	ItemEdited()
	CorruptRead()
}

// Store is the selection store. Every mutation reads the latest persisted collection,
// writes the full result back and only then updates the in-memory copy and broadcasts the
// change signal. Mutations that change nothing neither write nor broadcast.
type Store struct {
	backend  storage.Backend
	key      string
	notifier notify.Notifier
	observer Observer
	log      *slog.Logger

	// write orders backend writes with the in-memory copy they produce.
	write sync.Mutex
	mu    sync.RWMutex
	items []models.CurationItem
}

// Option customizes a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithNotifier sets the change broadcaster.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore creates a store over backend. Call Load before reading Items.
func NewStore(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted collection. An absent or unparseable value yields an empty
// collection; only backend failures are returned.
func (s *Store) Load(ctx context.Context) ([]models.CurationItem, error) {
	s.write.Lock()
	defer s.write.Unlock()

	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load newsletter items: %w", err)
	}
	items := s.decode(raw, found)

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return clone(items), nil
}

// Items returns the in-memory snapshot.
func (s *Store) Items() []models.CurationItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Count reads the collection size straight from storage, as an independent badge would.
func (s *Store) Count(ctx context.Context) (int, error) {
	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("count newsletter items: %w", err)
	}
	return len(s.decode(raw, found)), nil
}

// Add appends item unless an item with the same id is already stored.
func (s *Store) Add(ctx context.Context, item models.CurationItem) ([]models.CurationItem, error) {
	items, _, err := s.AddBatch(ctx, []models.CurationItem{item})
	return items, err
}

// AddBatch appends every item whose id is not stored yet (nor repeated earlier in the
// batch). It returns the resulting collection and the items actually added.
func (s *Store) AddBatch(ctx context.Context, batch []models.CurationItem) ([]models.CurationItem, []models.CurationItem, error) {
	var added []models.CurationItem
	items, changed, err := s.mutate(ctx, func(current []models.CurationItem) ([]models.CurationItem, bool) {
		added = added[:0]
		seen := make(map[string]struct{}, len(current)+len(batch))
		for _, it := range current {
			seen[it.ID] = struct{}{}
		}
		next := current
		for _, it := range batch {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			next = append(next, it)
			added = append(added, it)
		}
		return next, len(added) > 0
	})
	if err != nil {
		return nil, nil, fmt.Errorf("add newsletter items: %w", err)
	}
	if changed {
		s.log.Info("newsletter items added", slog.Int("added", len(added)), slog.Int("total", len(items)))
		if s.observer != nil {
			s.observer.ItemsAdded(len(added))
		}
	}
	return items, added, nil
}

// Remove drops the item with id.
func (s *Store) Remove(ctx context.Context, id string) ([]models.CurationItem, error) {
	items, changed, err := s.mutate(ctx, func(current []models.CurationItem) ([]models.CurationItem, bool) {
		next := make([]models.CurationItem, 0, len(current))
		for _, it := range current {
			if it.ID != id {
				next = append(next, it)
			}
		}
		return next, len(next) != len(current)
	})
	if err != nil {
		return nil, fmt.Errorf("remove newsletter item %s: %w", id, err)
	}
	if changed {
		s.log.Info("newsletter item removed", slog.String("id", id), slog.Int("total", len(items)))
		if s.observer != nil {
			s.observer.ItemRemoved()
		}
	}
	return items, nil
}

// Edit replaces the content of the item with id; every other field is kept.
func (s *Store) Edit(ctx context.Context, id, content string) ([]models.CurationItem, error) {
	items, changed, err := s.mutate(ctx, func(current []models.CurationItem) ([]models.CurationItem, bool) {
		changed := false
		for i := range current {
			if current[i].ID == id && current[i].Content != content {
				current[i].Content = content
				changed = true
			}
		}
		return current, changed
	})
	if err != nil {
		return nil, fmt.Errorf("edit newsletter item %s: %w", id, err)
	}
	if changed {
		s.log.Info("newsletter item edited", slog.String("id", id))
		if s.observer != nil {
			s.observer.ItemEdited()
		}
	}
	return items, nil
}

// mutate runs fn against the latest persisted collection inside one atomic backend update.
func (s *Store) mutate(ctx context.Context, fn func([]models.CurationItem) ([]models.CurationItem, bool)) ([]models.CurationItem, bool, error) {
	var (
		result  []models.CurationItem
		changed bool
	)
	s.write.Lock()
	err := s.backend.Update(ctx, s.key, func(raw []byte, found bool) ([]byte, bool, error) {
		next, ok := fn(s.decode(raw, found))
		result, changed = next, ok
		if !ok {
			return nil, false, nil
		}
		encoded, err := json.Marshal(nonNil(next))
		if err != nil {
			return nil, false, fmt.Errorf("encode items: %w", err)
		}
		return encoded, true, nil
	})
	if err != nil {
		s.write.Unlock()
		return nil, false, err
	}
	s.mu.Lock()
	s.items = result
	s.mu.Unlock()
	s.write.Unlock()

	if changed && s.notifier != nil {
		if err := s.notifier.Notify(ctx); err != nil {
			s.log.Warn("broadcast newsletter change", slog.Any("err", err))
		}
	}
	return clone(result), changed, nil
}

func (s *Store) decode(raw []byte, found bool) []models.CurationItem {
	if !found || len(raw) == 0 {
		return []models.CurationItem{}
	}
	var items []models.CurationItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Warn("stored newsletter items are not valid JSON, starting empty",
			slog.String("key", s.key), slog.Any("err", err))
		if s.observer != nil {
			s.observer.CorruptRead()
		}
		return []models.CurationItem{}
	}
	return nonNil(items)
}

func nonNil(items []models.CurationItem) []models.CurationItem {
	if items == nil {
		return []models.CurationItem{}
	}
	return items
}

func clone(items []models.CurationItem) []models.CurationItem {
	out := make([]models.CurationItem, len(items))
	copy(out, items)
	return out
}
