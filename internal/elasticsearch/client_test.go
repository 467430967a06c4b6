package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/elasticsearch"
	"github.com/DeafMist/competitor-newsletter/internal/models"
)

type recorded struct {
	method string
	path   string
	body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	respond  func(r *http.Request) (int, string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	status, payload := f.respond(r)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newClient(t *testing.T, f *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := elasticsearch.New(srv.URL, "newsletter_archive", nil)
	require.NoError(t, err)
	return c
}

func TestIndexItem(t *testing.T) {
	f := &fakeES{respond: func(*http.Request) (int, string) { return 201, `{"result":"created"}` }}
	c := newClient(t, f)

	item := models.ArchivedItem{
		CurationItem: models.CurationItem{ID: "latest-news-Acme", Company: "Acme", Category: "Latest News", Content: "plant"},
		ArchivedAt:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Keywords:     []string{"plant"},
	}
	require.NoError(t, c.IndexItem(context.Background(), item))

	require.Len(t, f.requests, 1)
	require.Equal(t, http.MethodPut, f.requests[0].method)
	require.Equal(t, "/newsletter_archive/_doc/latest-news-Acme", f.requests[0].path)

	var sent models.ArchivedItem
	require.NoError(t, json.Unmarshal([]byte(f.requests[0].body), &sent))
	require.Equal(t, item, sent)
}

func TestIndexItemError(t *testing.T) {
	f := &fakeES{respond: func(*http.Request) (int, string) { return 400, `{"error":"mapper_parsing_exception"}` }}
	err := newClient(t, f).IndexItem(context.Background(), models.ArchivedItem{CurationItem: models.CurationItem{ID: "x"}})
	require.ErrorContains(t, err, "mapper_parsing_exception")
}

func TestSearchItems(t *testing.T) {
	f := &fakeES{respond: func(*http.Request) (int, string) {
		return 200, `{"hits":{"total":{"value":7},"hits":[{"_source":{"id":"regulatory-Globex","company":"Globex","category":"Regulatory","archived_at":"2024-03-04T00:00:00Z","keywords":["fine"],"urls":[]}}]}}`
	}}
	c := newClient(t, f)

	res, err := c.SearchItems(context.Background(), elasticsearch.SearchParams{Company: "Globex", Size: 1000})
	require.NoError(t, err)
	require.EqualValues(t, 7, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "regulatory-Globex", res.Items[0].ID)

	require.True(t, strings.HasSuffix(f.requests[0].path, "/_search"))
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.requests[0].body), &body))
	require.EqualValues(t, 200, body["size"])
}

func TestBuildQuery(t *testing.T) {
	q := elasticsearch.BuildQuery(elasticsearch.SearchParams{})
	boolQuery := q["query"].(map[string]any)["bool"].(map[string]any)
	require.Contains(t, boolQuery, "must")
	require.NotContains(t, boolQuery, "filter")

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q = elasticsearch.BuildQuery(elasticsearch.SearchParams{
		Query:    "plant",
		Company:  "Acme",
		Category: "Latest News",
		Keywords: []string{"plant"},
		Start:    &start,
	})
	boolQuery = q["query"].(map[string]any)["bool"].(map[string]any)
	require.Len(t, boolQuery["must"], 1)
	require.Len(t, boolQuery["filter"], 4)

	q = elasticsearch.BuildQuery(elasticsearch.SearchParams{Size: 500, From: -3})
	require.Equal(t, 500, q["size"])
	require.Equal(t, -3, q["from"])
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	var calls int
	f := &fakeES{respond: func(*http.Request) (int, string) {
		calls++
		if calls < 3 {
			return 200, `{"deleted":2}`
		}
		return 200, `{"deleted":1}`
	}}
	c := newClient(t, f)

	deleted, err := c.DeleteOlderThan(context.Background(), 24*time.Hour, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, deleted)
	require.Len(t, f.requests, 3)
	require.Contains(t, f.requests[0].path, "/_delete_by_query")
	require.Contains(t, f.requests[0].body, "archived_at")
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	f := &fakeES{respond: func(r *http.Request) (int, string) {
		if r.Method == http.MethodHead {
			return 404, ``
		}
		return 200, `{"acknowledged":true}`
	}}
	c := newClient(t, f)
	require.NoError(t, c.EnsureIndex(context.Background()))

	require.Len(t, f.requests, 2)
	require.Equal(t, http.MethodPut, f.requests[1].method)
	require.Equal(t, "/newsletter_archive", f.requests[1].path)
	require.Contains(t, f.requests[1].body, `"archived_at":{"type":"date"}`)
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	f := &fakeES{respond: func(*http.Request) (int, string) { return 200, `` }}
	c := newClient(t, f)
	require.NoError(t, c.EnsureIndex(context.Background()))
	require.Len(t, f.requests, 1)
}
