package browse

import (
	"context"
	"fmt"
	"sync"

	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
)

// BatchAdder persists a confirmed selection.
type BatchAdder interface {
	AddBatch(ctx context.Context, batch []models.CurationItem) ([]models.CurationItem, []models.CurationItem, error)
}

// Dispatcher forwards newly curated items to best-effort sinks.
type Dispatcher interface {
	Dispatch(items []models.CurationItem)
}

// Selection collects entries picked in the browsing view until they are confirmed.
type Selection struct {
	mu     sync.Mutex
	picked []models.CurationItem
}

func NewSelection() *Selection {
	return &Selection{}
}

// Toggle selects the entry, or deselects it when already picked. Entries without data are
// ignored. It reports whether the entry is selected afterwards.
func (s *Selection) Toggle(company string, category models.Category, entry models.CategorizedEntry) bool {
	if entry.Empty() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.picked {
		if it.ID == entry.ID {
			s.picked = append(s.picked[:i], s.picked[i+1:]...)
			return false
		}
	}
	s.picked = append(s.picked, newsfeed.ToItem(company, category, entry))
	return true
}

// Selected returns the picked items in selection order.
func (s *Selection) Selected() []models.CurationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CurationItem(nil), s.picked...)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.picked)
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picked = nil
}

// Confirm adds the selection to the store, dispatches only the newly added items and clears
// the selection. On a store error the selection is kept.
func (s *Selection) Confirm(ctx context.Context, store BatchAdder, dispatcher Dispatcher) ([]models.CurationItem, error) {
	batch := s.Selected()
	if len(batch) == 0 {
		return nil, nil
	}
	_, added, err := store.AddBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("confirm selection: %w", err)
	}
	s.Clear()
	if dispatcher != nil && len(added) > 0 {
		dispatcher.Dispatch(added)
	}
	return added, nil
}
