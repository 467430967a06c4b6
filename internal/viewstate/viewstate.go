// Package viewstate remembers which dashboard view was last active.
package viewstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

const DefaultKey = "activePage"

const (
	Home       = "home"
	Newsletter = "newsletter"
	Assistant  = "aivy"
)

var ErrUnknownView = errors.New("unknown view")

var known = map[string]struct{}{Home: {}, Newsletter: {}, Assistant: {}}

type Store struct {
	backend storage.Backend
	key     string
}

func New(backend storage.Backend, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{backend: backend, key: key}
}

// Get returns the stored view, or Home when nothing valid is stored.
func (s *Store) Get(ctx context.Context) (string, error) {
	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return "", fmt.Errorf("read active view: %w", err)
	}
	if _, ok := known[string(raw)]; !found || !ok {
		return Home, nil
	}
	return string(raw), nil
}

func (s *Store) Set(ctx context.Context, view string) error {
	if _, ok := known[view]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	if err := s.backend.Put(ctx, s.key, []byte(view)); err != nil {
		return fmt.Errorf("write active view: %w", err)
	}
	return nil
}
