package dedupe_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/dedupe"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClaimOnce(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.Seen("alpha"))
	require.True(t, cache.Claim("alpha"))
	require.False(t, cache.Claim("alpha"))
	require.True(t, cache.Seen("alpha"))
}

func TestTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	require.True(t, cache.Claim("beta"))
	time.Sleep(30 * time.Millisecond)
	require.False(t, cache.Seen("beta"))
	require.True(t, cache.Claim("beta"))
}

func TestCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(2, time.Minute)
	require.True(t, cache.Claim("first"))
	require.True(t, cache.Claim("second"))
	require.True(t, cache.Claim("third"))

	require.Equal(t, 2, cache.Len())
	require.False(t, cache.Seen("first"))
	require.True(t, cache.Seen("second"))
	require.True(t, cache.Seen("third"))
}

func TestForgetAllowsRetry(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.True(t, cache.Claim("gamma"))
	cache.Forget("gamma")
	cache.Forget("missing")
	require.True(t, cache.Claim("gamma"))
}

func TestConcurrentClaimsSucceedOnce(t *testing.T) {
	cache := dedupe.NewCache(100, time.Minute)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.Claim("same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestKeyTracksContent(t *testing.T) {
	a := models.CurationItem{ID: "latest-news-Acme", Content: "first"}
	b := a
	b.Title = "changed title"
	c := a
	c.Content = "edited"

	require.Equal(t, dedupe.Key(a), dedupe.Key(b))
	require.NotEqual(t, dedupe.Key(a), dedupe.Key(c))
	require.Len(t, dedupe.Key(a), 64)
}
