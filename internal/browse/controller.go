// Package browse loads the per-company news view and collects selections from it.
package browse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
)

var (
	// ErrClosed is returned when a load completes after the controller was closed. The result
	// is dropped.
	ErrClosed = errors.New("browse controller closed")
	// ErrSuperseded is returned when a newer load started before this one completed.
	ErrSuperseded = errors.New("browse load superseded")
)

// DefaultMinDisplay keeps the loading indicator up for at least this long.
const DefaultMinDisplay = time.Second

type Fetcher interface {
	FetchRecords(ctx context.Context) ([]models.NewsRecord, error)
}

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// State is what a browsing view renders.
type State struct {
	Phase Phase `json:"phase"`
	// Loading stays true for the minimum display duration even if the data arrived earlier.
	Loading     bool          `json:"loading"`
	Competitors []string      `json:"competitors,omitempty"`
	View        newsfeed.View `json:"view,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Controller owns one browsing view's data.
type Controller struct {
	fetcher    Fetcher
	minDisplay time.Duration
	log        *slog.Logger

	mu           sync.Mutex
	closed       bool
	seq          uint64
	phase        Phase
	loadingUntil time.Time
	view         newsfeed.View
	competitors  []string
	errMsg       string
}

func NewController(fetcher Fetcher, minDisplay time.Duration, logger *slog.Logger) *Controller {
	if minDisplay < 0 {
		minDisplay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{fetcher: fetcher, minDisplay: minDisplay, log: logger, phase: PhaseIdle}
}

// Load fetches the records and projects them for the competitors of interest. Results of a
// load that was superseded, or that finished after Close, are not applied.
func (c *Controller) Load(ctx context.Context, interest []string) (newsfeed.View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.seq++
	seq := c.seq
	c.phase = PhaseLoading
	c.loadingUntil = time.Now().Add(c.minDisplay)
	c.mu.Unlock()

	records, err := c.fetcher.FetchRecords(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		c.log.Debug("dropping news load after close")
		return nil, ErrClosed
	case seq != c.seq:
		return nil, ErrSuperseded
	}

	if err != nil {
		c.log.Error("load competitor news failed", slog.Any("err", err))
		c.phase = PhaseError
		c.errMsg = err.Error()
		return nil, err
	}

	c.view = newsfeed.Normalize(records, interest)
	c.competitors = newsfeed.Competitors(records)
	c.errMsg = ""
	c.phase = PhaseReady
	return c.view, nil
}

// State returns a snapshot of the view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:       c.phase,
		Loading:     c.phase == PhaseLoading || time.Now().Before(c.loadingUntil),
		Competitors: append([]string(nil), c.competitors...),
		View:        c.view,
		Error:       c.errMsg,
	}
}

// Close tears the controller down. Pending loads complete but are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
