// Package session holds the per-login checkout state: who is operating the
// till and the single cart being staged.
package session

import (
	"sync"
	"time"

	"lojapdv/backend/internal/cart"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/xid"
)

// Session is not safe for concurrent use on its own; callers hold Lock while
// reading or mutating the cart and pending sale fields.
type Session struct {
	sync.Mutex

	ID           string
	Actor        domain.Actor
	Cart         *cart.Cart
	Discount     domain.Discount
	CustomerID   string
	CustomerName string
	StartedAt    time.Time
	LastSeen     time.Time
}

func New(actor domain.Actor, now time.Time) *Session {
	return &Session{
		ID:        xid.New("ses"),
		Actor:     actor,
		Cart:      cart.New(),
		Discount:  domain.NoDiscount(),
		StartedAt: now,
		LastSeen:  now,
	}
}

// Reset drops the cart and the pending sale options.
func (s *Session) Reset() {
	s.Cart.Clear()
	s.Discount = domain.NoDiscount()
	s.CustomerID = ""
	s.CustomerName = ""
}

type Snapshot struct {
	ID           string            `json:"id"`
	Actor        domain.Actor      `json:"actor"`
	Lines        []domain.CartLine `json:"lines"`
	Subtotal     string            `json:"subtotal"`
	Discount     domain.Discount   `json:"discount"`
	Total        string            `json:"total"`
	CustomerID   string            `json:"customer_id,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
}

func NewRegistry(idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 2 * time.Hour
	}
	return &Registry{sessions: make(map[string]*Session), idle: idle}
}

func (r *Registry) Open(actor domain.Actor, now time.Time) *Session {
	sess := New(actor, now)
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Get returns the session if it exists and belongs to username.
func (r *Registry) Get(id string, username string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Actor.Username != username {
		return nil, domain.NotFound("session", id)
	}
	if now.Sub(sess.LastSeen) > r.idle {
		delete(r.sessions, id)
		return nil, domain.NotFound("session", id)
	}
	sess.LastSeen = now
	return sess, nil
}

// Close destroys the session and its cart.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep removes sessions idle longer than the registry's limit and reports
// how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if now.Sub(sess.LastSeen) > r.idle {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
