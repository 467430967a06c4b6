// Package storage provides the durable key/value backends shared by every view of the
// newsletter: an in-memory map for tests, SQLite for a single host and Redis when several
// processes share the collection.
//
// Each backend offers Update, an atomic read-modify-write on one key. Callers that derive
// the next value from the current one must use it so that a write is always based on the
// latest persisted value.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("unknown storage backend")

// UpdateFunc receives the current value of a key and returns the value to store.
// Returning write=false leaves the key untouched.
type UpdateFunc func(current []byte, found bool) (next []byte, write bool, err error)

// Backend is a durable string-keyed byte store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// Memory keeps values in process memory.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, found := m.values[key]
	next, write, err := fn(append([]byte(nil), current...), found)
	if err != nil || !write {
		return err
	}
	m.values[key] = append([]byte(nil), next...)
	return nil
}

func (m *Memory) Close() error { return nil }

// Options selects and configures a backend.
type Options struct {
	Kind  string // memory, sqlite or redis
	Path  string
	Redis RedisConfig
}

// Open builds the backend named by opts.Kind.
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case "memory":
		return NewMemory(), nil
	case "", "sqlite":
		return NewSQLite(opts.Path)
	case "redis":
		return NewRedis(opts.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Kind)
	}
}
