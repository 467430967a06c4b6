package browse_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/browse"
	"github.com/DeafMist/competitor-newsletter/internal/compose"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/storage"
)

func latestNewsOnly(competitor, topic, content string) models.NewsRecord {
	return models.NewsRecord{
		Competitor: competitor,
		LatestNews: &models.Article{Topic: str(topic), Date: str("2024-03-01"), Source: str("Reuters"), Content: str(content)},
	}
}

// curate normalizes records, picks every Latest News entry and confirms the selection.
func curate(t *testing.T, store *curation.Store, records []models.NewsRecord, competitors ...string) []models.CurationItem {
	t.Helper()
	view := newsfeed.Normalize(records, competitors)
	sel := browse.NewSelection()
	for _, c := range competitors {
		require.True(t, sel.Toggle(c, models.CategoryLatestNews, view.Lookup(c)[models.CategoryLatestNews]))
	}
	added, err := sel.Confirm(context.Background(), store, nil)
	require.NoError(t, err)
	return added
}

func pdfPages(t *testing.T, data []byte) []string {
	t.Helper()
	ctx, err := api.ReadAndValidate(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	pages := make([]string, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		require.NoError(t, err)
		content, err := io.ReadAll(r)
		require.NoError(t, err)
		pages = append(pages, string(content))
	}
	return pages
}

func TestBrowseToNewsletter(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := curation.NewStore(backend)
	_, err := store.Load(ctx)
	require.NoError(t, err)

	records := []models.NewsRecord{
		latestNewsOnly("Acme", "Acme opens plant", "A new plant in Ohio."),
		latestNewsOnly("Globex", "Globex cuts prices", "Prices fall by ten percent."),
	}
	added := curate(t, store, records, "Acme", "Globex")
	require.Len(t, added, 2)

	persisted, err := curation.NewStore(backend).Load(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	require.Equal(t, "latest-news-Acme", persisted[0].ID)
	require.Equal(t, "latest-news-Globex", persisted[1].ID)

	doc, err := compose.NewComposer(compose.DefaultBanner).Compose(ctx, persisted)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	pages := pdfPages(t, doc.PDF)
	require.Len(t, pages, 1)
	require.Contains(t, pages[0], "(Acme opens plant) Tj")
	require.Contains(t, pages[0], "(Globex cuts prices) Tj")

	again := curate(t, store, records, "Acme", "Globex")
	require.Empty(t, again)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestBrowseToNewsletterOverflow(t *testing.T) {
	ctx := context.Background()
	store := curation.NewStore(storage.NewMemory())

	// 18 words of "word" fill one 180mm line at 2mm per rune.
	long := strings.TrimSpace(strings.Repeat("word ", 18*18))
	second := strings.TrimSpace(strings.Repeat("word ", 18*6))
	records := []models.NewsRecord{
		latestNewsOnly("Acme", "Acme opens plant", long),
		latestNewsOnly("Globex", "Globex cuts prices", second),
	}
	items := curate(t, store, records, "Acme", "Globex")
	require.Len(t, items, 2)

	doc, err := compose.NewComposer(compose.DefaultBanner, compose.WithMeasurer(compose.FixedMeasurer(2))).
		Compose(ctx, store.Items())
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
	require.Empty(t, doc.Truncated())

	overflow := doc.Pages[1]
	require.False(t, overflow.Header)
	require.Len(t, overflow.Blocks, 1)
	block := overflow.Blocks[0]
	require.Equal(t, "latest-news-Globex", block.ItemID)

	// Title and two metadata lines precede the body.
	body := make([]string, 0, len(block.Runs))
	for _, r := range block.Runs[3:] {
		body = append(body, r.Text)
	}
	require.Len(t, body, 6)
	require.Equal(t, second, strings.Join(body, " "))

	pages := pdfPages(t, doc.PDF)
	require.Len(t, pages, 2)
	require.Contains(t, pages[0], " Do")
	require.NotContains(t, pages[1], " Do")
	require.Contains(t, pages[1], "(Globex cuts prices) Tj")
	require.Contains(t, pages[1], "("+body[5]+") Tj")
}
