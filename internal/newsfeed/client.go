package newsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/logger"
	"github.com/DeafMist/competitor-newsletter/internal/models"
)

// ErrFetch marks failures retrieving the competitor news feed.
var ErrFetch = errors.New("fetch news records")

// ErrSendRejected is returned when the send endpoint answers without success.
var ErrSendRejected = errors.New("send newsletter rejected")

const (
	recordsPath  = "/api/daily_newsletters"
	saveItemPath = "/api/add_newsletter_item"
	sendPath     = "/api/send_newsletter_email"
)

// Client talks to the remote competitor news service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// SendRequest is the body of POST /api/send_newsletter_email.
type SendRequest struct {
	Email      string `json:"email"`
	Subject    string `json:"subject"`
	Message    string `json:"message,omitempty"`
	PDFDataURI string `json:"pdfDataUri"`
}

type sendResponse struct {
	Success bool `json:"success"`
}

// New builds a client for the service rooted at baseURL.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// FetchRecords downloads the full record list. Filtering by competitor happens client-side.
func (c *Client) FetchRecords(ctx context.Context) ([]models.NewsRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+recordsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetch, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}

	records := make([]models.NewsRecord, 0, len(raw))
	for i, item := range raw {
		var rec models.NewsRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			c.log.Warn("skip malformed news record", slog.Int("index", i), slog.Any("err", err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveItem posts a curated item to the remote service.
func (c *Client) SaveItem(ctx context.Context, item models.CurationItem) error {
	res, err := c.postJSON(ctx, saveItemPath, item)
	if err != nil {
		return fmt.Errorf("save item %s: %w", item.ID, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("save item %s: status %d", item.ID, res.StatusCode)
	}
	return nil
}

// SendNewsletter asks the remote service to email the document.
func (c *Client) SendNewsletter(ctx context.Context, payload SendRequest) error {
	res, err := c.postJSON(ctx, sendPath, payload)
	if err != nil {
		return fmt.Errorf("send newsletter: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrSendRejected, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed sendResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode send response: %w", err)
	}
	if !parsed.Success {
		return ErrSendRejected
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
