package browse_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/browse"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

func str(s string) *string { return &s }

type stubFetcher struct {
	records []models.NewsRecord
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (f *stubFetcher) FetchRecords(ctx context.Context) ([]models.NewsRecord, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

func records() []models.NewsRecord {
	return []models.NewsRecord{
		{Competitor: "Acme", LatestNews: &models.Article{Topic: str("Plant"), Content: str("Acme opens a plant")}},
		{Competitor: "Globex", Regulatory: []models.Article{{Topic: str("Fine"), Content: str("Globex fined")}}},
		{Competitor: "Initech"},
	}
}

func TestLoadReady(t *testing.T) {
	c := browse.NewController(&stubFetcher{records: records()}, 0, nil)
	require.Equal(t, browse.PhaseIdle, c.State().Phase)

	view, err := c.Load(context.Background(), []string{"Acme", "Globex", "Umbrella"})
	require.NoError(t, err)
	require.Len(t, view, 2)
	require.Equal(t, "latest-news-Acme", view["Acme"][models.CategoryLatestNews].ID)

	st := c.State()
	require.Equal(t, browse.PhaseReady, st.Phase)
	require.False(t, st.Loading)
	require.Equal(t, []string{"Acme", "Globex", "Initech"}, st.Competitors)
	require.Empty(t, st.Error)
}

func TestLoadError(t *testing.T) {
	fetchErr := fmt.Errorf("%w: unexpected status 503", newsfeed.ErrFetch)
	c := browse.NewController(&stubFetcher{err: fetchErr}, 0, nil)

	_, err := c.Load(context.Background(), []string{"Acme"})
	require.ErrorIs(t, err, newsfeed.ErrFetch)

	st := c.State()
	require.Equal(t, browse.PhaseError, st.Phase)
	require.Equal(t, fetchErr.Error(), st.Error)
}

func TestLoadingIndicatorHonoursMinimumDisplay(t *testing.T) {
	c := browse.NewController(&stubFetcher{records: records()}, 200*time.Millisecond, nil)
	_, err := c.Load(context.Background(), []string{"Acme"})
	require.NoError(t, err)

	st := c.State()
	require.Equal(t, browse.PhaseReady, st.Phase)
	require.True(t, st.Loading)
	require.Eventually(t, func() bool { return !c.State().Loading }, 2*time.Second, 10*time.Millisecond)
}

func TestLoadAfterCloseIsDiscarded(t *testing.T) {
	f := &stubFetcher{records: records(), release: make(chan struct{})}
	c := browse.NewController(f, 0, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), []string{"Acme"})
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State().Phase == browse.PhaseLoading }, time.Second, time.Millisecond)

	c.Close()
	close(f.release)

	require.ErrorIs(t, <-done, browse.ErrClosed)
	st := c.State()
	require.Nil(t, st.View)
	require.Empty(t, st.Competitors)

	_, err := c.Load(context.Background(), []string{"Acme"})
	require.ErrorIs(t, err, browse.ErrClosed)
}

func TestSupersededLoadIsNotApplied(t *testing.T) {
	slow := &stubFetcher{records: records(), release: make(chan struct{})}
	c := browse.NewController(slow, 0, nil)

	first := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), []string{"Acme"})
		first <- err
	}()
	require.Eventually(t, func() bool { return c.State().Phase == browse.PhaseLoading }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), []string{"Globex"})
		second <- err
	}()
	require.Eventually(t, func() bool { return slow.calls.Load() == 2 }, time.Second, time.Millisecond)

	// Both loads wait on the same gate; whichever started last wins.
	close(slow.release)
	errs := []error{<-first, <-second}
	require.Contains(t, errs, error(nil))
	require.True(t, errors.Is(errs[0], browse.ErrSuperseded) || errors.Is(errs[1], browse.ErrSuperseded))
	require.Equal(t, browse.PhaseReady, c.State().Phase)
}

func TestSelectionToggle(t *testing.T) {
	view := newsfeed.Normalize(records(), []string{"Acme", "Globex"})
	sel := browse.NewSelection()

	acme := view.Lookup("Acme")[models.CategoryLatestNews]
	require.True(t, sel.Toggle("Acme", models.CategoryLatestNews, acme))
	require.Equal(t, 1, sel.Len())

	require.False(t, sel.Toggle("Acme", models.CategoryWebsiteContent, view.Lookup("Acme")[models.CategoryWebsiteContent]))
	require.Equal(t, 1, sel.Len())

	require.False(t, sel.Toggle("Acme", models.CategoryLatestNews, acme))
	require.Zero(t, sel.Len())
}

type countingDispatcher struct {
	mu    sync.Mutex
	calls [][]models.CurationItem
}

func (d *countingDispatcher) Dispatch(items []models.CurationItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, items)
}

func TestConfirmAddsBatchAndDispatchesNewOnly(t *testing.T) {
	ctx := context.Background()
	view := newsfeed.Normalize(records(), []string{"Acme", "Globex"})
	store := curation.NewStore(storage.NewMemory())
	disp := &countingDispatcher{}

	acme := view.Lookup("Acme")[models.CategoryLatestNews]
	_, err := store.Add(ctx, newsfeed.ToItem("Acme", models.CategoryLatestNews, acme))
	require.NoError(t, err)

	sel := browse.NewSelection()
	sel.Toggle("Acme", models.CategoryLatestNews, acme)
	sel.Toggle("Globex", models.CategoryRegulatory, view.Lookup("Globex")[models.CategoryRegulatory])

	added, err := sel.Confirm(ctx, store, disp)
	require.NoError(t, err)
	require.Len(t, added, 1)
	require.Equal(t, "regulatory-Globex", added[0].ID)
	require.Zero(t, sel.Len())

	require.Len(t, disp.calls, 1)
	require.Equal(t, added, disp.calls[0])

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	added, err = sel.Confirm(ctx, store, disp)
	require.NoError(t, err)
	require.Empty(t, added)
	require.Len(t, disp.calls, 1)
}

type failingAdder struct{}

func (failingAdder) AddBatch(context.Context, []models.CurationItem) ([]models.CurationItem, []models.CurationItem, error) {
	return nil, nil, errors.New("disk full")
}

func TestConfirmFailureKeepsSelection(t *testing.T) {
	view := newsfeed.Normalize(records(), []string{"Acme"})
	sel := browse.NewSelection()
	sel.Toggle("Acme", models.CategoryLatestNews, view.Lookup("Acme")[models.CategoryLatestNews])

	_, err := sel.Confirm(context.Background(), failingAdder{}, nil)
	require.Error(t, err)
	require.Equal(t, 1, sel.Len())
}
