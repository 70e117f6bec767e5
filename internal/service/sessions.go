package service

import (
	"sync"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/models"

	"github.com/google/uuid"
)

// Session is one logged-in cashier and the cart they are building
type Session struct {
	ID        string
	User      models.User
	Cart      *cart.Cart
	CreatedAt time.Time
}

// SessionManager tracks open sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session table
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Open starts a session with a fresh cart
func (m *SessionManager) Open(user models.User) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		User:      user.Public(),
		Cart:      cart.New(),
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns an open session
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session and drops its cart
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of open sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
