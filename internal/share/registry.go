package share

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds share sessions by id.
type Registry struct {
	factory func() *Workflow

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	workflow *Workflow
	touched  time.Time
}

// NewRegistry creates sessions with factory.
func NewRegistry(factory func() *Workflow) *Registry {
	return &Registry{factory: factory, sessions: make(map[string]*session)}
}

// Create starts a new session.
func (r *Registry) Create() (string, *Workflow) {
	id := uuid.NewString()
	w := r.factory()
	r.mu.Lock()
	r.sessions[id] = &session{workflow: w, touched: time.Now()}
	r.mu.Unlock()
	return id, w
}

func (r *Registry) Get(id string) (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.touched = time.Now()
	return s.workflow, true
}

// Remove cancels and forgets a session. A session that is sending is kept and ErrBusy returned.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	if err := s.workflow.Cancel(); err != nil {
		return true, err
	}
	delete(r.sessions, id)
	return true, nil
}

// Sweep drops idle sessions untouched for longer than maxAge and returns how many were removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.touched.After(cutoff) {
			continue
		}
		if st := s.workflow.State(); st == Composing || st == Sending {
			continue
		}
		_ = s.workflow.Cancel()
		delete(r.sessions, id)
		removed++
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
