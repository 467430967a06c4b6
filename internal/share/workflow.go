// Package share drives a composed newsletter from preview to an emailed PDF.
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/DeafMist/competitor-newsletter/internal/compose"
	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/newsfeed"
)

var (
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrCompose           = errors.New("compose newsletter")
	ErrSend              = errors.New("send newsletter")
	ErrInvalidTransition = errors.New("invalid share transition")
	ErrBusy              = errors.New("share operation in progress")
	ErrCancelled         = errors.New("share cancelled")
)

// Subject is the email subject of every shared newsletter.
const Subject = "Newsletter Items"

// Status messages shown alongside the workflow state.
const (
	StatusInvalidRecipient = "Please enter a valid email address"
	StatusSending          = "Sending..."
	StatusSent             = "Email sent successfully!"
	StatusSendFailed       = "Failed to send email. Please try again."
	StatusComposeFailed    = "Failed to generate PDF. Please try again."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidRecipient reports whether addr looks like an email address.
func ValidRecipient(addr string) bool {
	return emailPattern.MatchString(addr)
}

type State string

const (
	Idle       State = "idle"
	Composing  State = "composing"
	Previewing State = "previewing"
	Addressing State = "addressing"
	Sending    State = "sending"
	Sent       State = "sent"
	Failed     State = "failed"
)

// ItemSource returns the curated collection to compose.
type ItemSource interface {
	Load(ctx context.Context) ([]models.CurationItem, error)
}

type Composer interface {
	Compose(ctx context.Context, items []models.CurationItem) (*compose.Document, error)
}

type Sender interface {
	SendNewsletter(ctx context.Context, req newsfeed.SendRequest) error
}

// Observer is notified of compose and send outcomes.
type Observer interface {
	Composed(took time.Duration, pages int, err error)
	Sent(took time.Duration, err error)
}

// Snapshot is a consistent view of a workflow.
type Snapshot struct {
	State     State    `json:"state"`
	Status    string   `json:"status,omitempty"`
	Email     string   `json:"email,omitempty"`
	Message   string   `json:"message,omitempty"`
	Pages     int      `json:"pages,omitempty"`
	Truncated []string `json:"truncated,omitempty"`
}

// Workflow is one share session. Compose and send run outside the lock; while either is in
// flight other transitions are rejected with ErrBusy.
type Workflow struct {
	items      ItemSource
	composer   Composer
	sender     Sender
	observer   Observer
	closeDelay time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	state   State
	status  string
	doc     *compose.Document
	email   string
	message string
	// gen changes on every reset so late compose results and close timers can be discarded.
	gen   uint64
	timer *time.Timer
}

type Option func(*Workflow)

// WithCloseDelay returns the workflow to Idle this long after a successful send. Zero keeps
// it in Sent until Acknowledge.
func WithCloseDelay(d time.Duration) Option { return func(w *Workflow) { w.closeDelay = d } }

func WithObserver(o Observer) Option { return func(w *Workflow) { w.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(w *Workflow) { w.log = l } }

func New(items ItemSource, composer Composer, sender Sender, opts ...Option) *Workflow {
	w := &Workflow{
		items:    items,
		composer: composer,
		sender:   sender,
		log:      slog.Default(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{State: w.state, Status: w.status, Email: w.email, Message: w.message}
	if w.doc != nil {
		s.Pages = len(w.doc.Pages)
		s.Truncated = w.doc.Truncated()
	}
	return s
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Document returns the composed document once a preview exists.
func (w *Workflow) Document() (*compose.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil, fmt.Errorf("%w: no document in state %s", ErrInvalidTransition, w.state)
	}
	return w.doc, nil
}

// Preview composes the current collection: Idle -> Composing -> Previewing. On failure the
// workflow returns to Idle with a status message.
func (w *Workflow) Preview(ctx context.Context) error {
	w.mu.Lock()
	if err := w.expect(Idle); err != nil {
		w.mu.Unlock()
		return err
	}
	w.state = Composing
	w.status = ""
	gen := w.gen
	w.mu.Unlock()

	start := time.Now()
	doc, err := w.compose(ctx)
	if w.observer != nil {
		pages := 0
		if doc != nil {
			pages = len(doc.Pages)
		}
		w.observer.Composed(time.Since(start), pages, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return ErrCancelled
	}
	if err != nil {
		w.log.Error("compose newsletter failed", slog.Any("err", err))
		w.state = Idle
		w.status = StatusComposeFailed
		return fmt.Errorf("%w: %w", ErrCompose, err)
	}
	w.doc = doc
	w.state = Previewing
	return nil
}

func (w *Workflow) compose(ctx context.Context) (*compose.Document, error) {
	items, err := w.items.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return w.composer.Compose(ctx, items)
}

// Proceed moves from the preview to recipient entry.
func (w *Workflow) Proceed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(Previewing); err != nil {
		return err
	}
	w.state = Addressing
	w.status = ""
	return nil
}

// Submit validates the recipient and sends. An invalid address keeps the workflow where it
// was. Submitting again from Failed sends to the new address.
func (w *Workflow) Submit(ctx context.Context, email, message string) error {
	w.mu.Lock()
	if err := w.expect(Addressing, Failed); err != nil {
		w.mu.Unlock()
		return err
	}
	if !ValidRecipient(email) {
		w.status = StatusInvalidRecipient
		w.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, email)
	}
	w.email = email
	w.message = message
	return w.send(ctx)
}

// Retry resends to the same recipient after a failure.
func (w *Workflow) Retry(ctx context.Context) error {
	w.mu.Lock()
	if err := w.expect(Failed); err != nil {
		w.mu.Unlock()
		return err
	}
	return w.send(ctx)
}

// send is entered with the lock held and releases it.
func (w *Workflow) send(ctx context.Context) error {
	w.state = Sending
	w.status = StatusSending
	req := newsfeed.SendRequest{
		Email:      w.email,
		Subject:    Subject,
		Message:    w.message,
		PDFDataURI: w.doc.DataURI(),
	}
	w.mu.Unlock()

	start := time.Now()
	err := w.sender.SendNewsletter(ctx, req)
	if w.observer != nil {
		w.observer.Sent(time.Since(start), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.log.Error("send newsletter failed", slog.String("email", req.Email), slog.Any("err", err))
		w.state = Failed
		w.status = StatusSendFailed
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	w.log.Info("newsletter sent", slog.String("email", req.Email))
	w.state = Sent
	w.status = StatusSent
	if w.closeDelay > 0 {
		gen := w.gen
		w.timer = time.AfterFunc(w.closeDelay, func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.gen == gen && w.state == Sent {
				w.reset()
			}
		})
	}
	return nil
}

// Abandon gives up after a failed send.
func (w *Workflow) Abandon() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(Failed); err != nil {
		return err
	}
	w.reset()
	return nil
}

// Acknowledge closes a successful share.
func (w *Workflow) Acknowledge() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(Sent); err != nil {
		return err
	}
	w.reset()
	return nil
}

// Cancel discards the document, recipient and message from any state but Sending.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Sending {
		return ErrBusy
	}
	w.reset()
	return nil
}

func (w *Workflow) reset() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.state = Idle
	w.status = ""
	w.doc = nil
	w.email = ""
	w.message = ""
}

func (w *Workflow) expect(states ...State) error {
	for _, s := range states {
		if w.state == s {
			return nil
		}
	}
	if w.state == Composing || w.state == Sending {
		return fmt.Errorf("%w: %s", ErrBusy, w.state)
	}
	return fmt.Errorf("%w: from %s", ErrInvalidTransition, w.state)
}
