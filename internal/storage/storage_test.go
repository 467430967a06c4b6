package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()

	sqlite, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	rdb, err := storage.NewRedis(storage.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	return map[string]storage.Backend{
		"memory": storage.NewMemory(),
		"sqlite": sqlite,
		"redis":  rdb,
	}
}

func TestBackendGetPut(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := b.Get(ctx, "newsletterItems")
			require.NoError(t, err)
			require.False(t, found)

			require.NoError(t, b.Put(ctx, "newsletterItems", []byte(`[]`)))
			require.NoError(t, b.Put(ctx, "newsletterItems", []byte(`[{"id":"a"}]`)))

			v, found, err := b.Get(ctx, "newsletterItems")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, `[{"id":"a"}]`, string(v))
		})
	}
}

func TestBackendUpdateSkipsWrite(t *testing.T) {
	errStop := errors.New("stop")

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.Put(ctx, "k", []byte("1")))

			err := b.Update(ctx, "k", func(current []byte, found bool) ([]byte, bool, error) {
				require.True(t, found)
				require.Equal(t, "1", string(current))
				return []byte("2"), false, nil
			})
			require.NoError(t, err)

			err = b.Update(ctx, "k", func([]byte, bool) ([]byte, bool, error) {
				return []byte("3"), true, errStop
			})
			require.ErrorIs(t, err, errStop)

			v, _, err := b.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "1", string(v))
		})
	}
}

func TestBackendUpdateIsAtomic(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 10

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := b.Update(ctx, "counter", func(current []byte, found bool) ([]byte, bool, error) {
						n := 0
						if found {
							var err error
							n, err = strconv.Atoi(string(current))
							if err != nil {
								return nil, false, err
							}
						}
						return []byte(strconv.Itoa(n + 1)), true, nil
					})
					require.NoError(t, err)
				}()
			}
			wg.Wait()

			v, found, err := b.Get(ctx, "counter")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, strconv.Itoa(writers), string(v))
		})
	}
}

func TestSQLiteUpdateAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "newsletter.db")

	a, err := storage.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := storage.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	const writers = 20
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		handle := a
		if i%2 == 1 {
			handle = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- handle.Update(ctx, "counter", func(current []byte, found bool) ([]byte, bool, error) {
				n := 0
				if found {
					n, _ = strconv.Atoi(string(current))
				}
				return []byte(strconv.Itoa(n + 1)), true, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, found, err := a.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, strconv.Itoa(writers), string(v))
}

func TestOpen(t *testing.T) {
	b, err := storage.Open(storage.Options{Kind: "memory"})
	require.NoError(t, err)
	require.IsType(t, &storage.Memory{}, b)

	b, err = storage.Open(storage.Options{Kind: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = storage.Open(storage.Options{Kind: "redis"})
	require.ErrorIs(t, err, storage.ErrEmptyRedisAddress)

	_, err = storage.Open(storage.Options{Kind: "etcd"})
	require.ErrorIs(t, err, storage.ErrUnknownBackend)
}
