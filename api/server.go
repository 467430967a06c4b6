package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/competitor-newsletter/internal/browse"
	"github.com/DeafMist/competitor-newsletter/internal/curation"
	"github.com/DeafMist/competitor-newsletter/internal/elasticsearch"
	"github.com/DeafMist/competitor-newsletter/internal/metrics"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
	"github.com/DeafMist/competitor-newsletter/internal/processing"
	"github.com/DeafMist/competitor-newsletter/internal/share"
	"github.com/DeafMist/competitor-newsletter/internal/viewstate"
)

type archiveSearcher interface {
	SearchItems(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log         *slog.Logger
	feed        browse.Fetcher
	competitors []string
	store       *curation.Store
	dispatcher  browse.Dispatcher
	views       *viewstate.Store
	shares      *share.Registry
	archive     archiveSearcher // nil when the archive is disabled
	metrics     *metrics.Metrics
	defaultPage int
	maxPage     int
}

type errorResponse struct {
	Error string `json:"error"`
}

type itemsResponse struct {
	Items []models.CurationItem `json:"items"`
	Count int                   `json:"count"`
}

type selectionRequest struct {
	Company  string                  `json:"company"`
	Category models.Category         `json:"category"`
	Entry    models.CategorizedEntry `json:"entry"`
}

type addResponse struct {
	Items []models.CurationItem `json:"items"`
	Added []models.CurationItem `json:"added"`
}

type editRequest struct {
	Content *string `json:"content"`
}

type viewRequest struct {
	View string `json:"view"`
}

type sendRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type shareResponse struct {
	ID string `json:"id"`
	share.Snapshot
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/competitors", s.handleCompetitors)
	r.Get("/news", s.handleNews)

	r.Route("/newsletter", func(r chi.Router) {
		r.Get("/items", s.handleListItems)
		r.Post("/items", s.handleAddItems)
		r.Delete("/items/{id}", s.handleRemoveItem)
		r.Patch("/items/{id}", s.handleEditItem)
		r.Get("/count", s.handleCount)
	})

	r.Get("/view", s.handleGetView)
	r.Put("/view", s.handleSetView)

	r.Route("/share", func(r chi.Router) {
		r.Post("/", s.handleCreateShare)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleShareStatus)
			r.Delete("/", s.handleCancelShare)
			r.Get("/document.pdf", s.handleShareDocument)
			r.Post("/preview", s.shareAction(func(ctx context.Context, w *share.Workflow, _ *http.Request) error {
				return w.Preview(ctx)
			}))
			r.Post("/proceed", s.shareAction(func(_ context.Context, w *share.Workflow, _ *http.Request) error {
				return w.Proceed()
			}))
			r.Post("/send", s.shareAction(func(ctx context.Context, w *share.Workflow, r *http.Request) error {
				var req sendRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					return errBadRequest
				}
				return w.Submit(ctx, strings.TrimSpace(req.Email), req.Message)
			}))
			r.Post("/retry", s.shareAction(func(ctx context.Context, w *share.Workflow, _ *http.Request) error {
				return w.Retry(ctx)
			}))
			r.Post("/abandon", s.shareAction(func(_ context.Context, w *share.Workflow, _ *http.Request) error {
				return w.Abandon()
			}))
			r.Post("/ack", s.shareAction(func(_ context.Context, w *share.Workflow, _ *http.Request) error {
				return w.Acknowledge()
			}))
		})
	})

	r.Get("/archive", s.handleArchiveSearch)
	return r
}

var errBadRequest = errors.New("malformed request body")

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.Count(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if s.archive != nil {
		if err := s.archive.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleCompetitors(w http.ResponseWriter, r *http.Request) {
	records, err := s.feed.FetchRecords(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"competitors": newsfeed.Competitors(records)})
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	interest := parseCSV(r.URL.Query().Get("competitors"))
	if len(interest) == 0 {
		interest = s.competitors
	}

	c := browse.NewController(s.feed, 0, s.log)
	defer c.Close()
	if _, err := c.Load(r.Context(), interest); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (s *server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items, Count: len(items)})
}

// handleAddItems confirms a batch of browsed entries in one store write.
func (s *server) handleAddItems(w http.ResponseWriter, r *http.Request) {
	var req []selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	sel := browse.NewSelection()
	picked := make(map[string]struct{}, len(req))
	for _, pick := range req {
		company := strings.TrimSpace(pick.Company)
		if company == "" || pick.Entry.Empty() || !knownCategory(pick.Category) {
			continue
		}
		// Ids are derived server side; a client-supplied id is ignored.
		pick.Entry.ID = processing.EntryID(pick.Category, company)
		// A second toggle would deselect the entry.
		if _, dup := picked[pick.Entry.ID]; dup {
			continue
		}
		picked[pick.Entry.ID] = struct{}{}
		sel.Toggle(company, pick.Category, pick.Entry)
	}

	added, err := sel.Confirm(r.Context(), s.store, s.dispatcher)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if added == nil {
		added = []models.CurationItem{}
	}
	writeJSON(w, http.StatusOK, addResponse{Items: s.store.Items(), Added: added})
}

func knownCategory(c models.Category) bool {
	for _, known := range models.Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (s *server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items, Count: len(items)})
}

func (s *server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == nil {
		s.writeError(w, errBadRequest)
		return
	}
	items, err := s.store.Edit(r.Context(), chi.URLParam(r, "id"), *req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items, Count: len(items)})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": n,
		"badge": curation.BadgeLabel(n),
	})
}

func (s *server) handleGetView(w http.ResponseWriter, r *http.Request) {
	view, err := s.views.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRequest{View: view})
}

func (s *server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	if err := s.views.Set(r.Context(), req.View); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleCreateShare opens a session and composes the preview right away. A failed compose
// keeps the session in idle so the client can retry via /preview.
func (s *server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	id, wf := s.shares.Create()
	if err := wf.Preview(r.Context()); err != nil {
		s.log.Warn("share preview failed", slog.String("share_id", id), slog.Any("err", err))
		writeJSON(w, statusFor(err), struct {
			shareResponse
			Error string `json:"error"`
		}{shareResponse{ID: id, Snapshot: wf.Snapshot()}, err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{ID: id, Snapshot: wf.Snapshot()})
}

func (s *server) handleShareStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, ok := s.shares.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "share session not found"})
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{ID: id, Snapshot: wf.Snapshot()})
}

func (s *server) handleShareDocument(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.shares.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "share session not found"})
		return
	}
	doc, err := wf.Document()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="generated.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.PDF)
}

func (s *server) handleCancelShare(w http.ResponseWriter, r *http.Request) {
	found, err := s.shares.Remove(chi.URLParam(r, "id"))
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "share session not found"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) shareAction(fn func(ctx context.Context, wf *share.Workflow, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		wf, ok := s.shares.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "share session not found"})
			return
		}
		if err := fn(r.Context(), wf, r); err != nil {
			writeJSON(w, statusFor(err), struct {
				shareResponse
				Error string `json:"error"`
			}{shareResponse{ID: id, Snapshot: wf.Snapshot()}, err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, shareResponse{ID: id, Snapshot: wf.Snapshot()})
	}
}

func (s *server) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "archive disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(q.Get("q")),
		Company:  strings.TrimSpace(q.Get("company")),
		Category: strings.TrimSpace(q.Get("category")),
		Keywords: parseCSV(q.Get("keywords")),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.defaultPage, s.maxPage),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.archive.SearchItems(ctx, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", slog.Any("err", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, share.ErrInvalidRecipient),
		errors.Is(err, viewstate.ErrUnknownView):
		return http.StatusBadRequest
	case errors.Is(err, share.ErrInvalidTransition),
		errors.Is(err, share.ErrBusy),
		errors.Is(err, share.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, newsfeed.ErrFetch),
		errors.Is(err, share.ErrSend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
