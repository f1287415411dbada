package backend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Progress event types.
const (
	EventInfo     = "info"
	EventProgress = "progress"
	EventError    = "error"
	EventComplete = "complete"
)

const progressBuffer = 100

// ProgressUpdate is one event streamed to the client.
type ProgressUpdate struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Session is one job's lifetime: its progress stream and its cancellation.
// Sessions are keyed by owner, a client-chosen id; the server-side ID is
// what progress, queue and cancel requests refer to.
type Session struct {
	ID        string
	Owner     string
	Ctx       context.Context
	CancelFn  context.CancelFunc
	CreatedAt time.Time

	progress chan ProgressUpdate
	mu       sync.Mutex
	closed   bool
}

// Progress is the receive side of the session's event stream. It is closed
// when the session is removed.
func (s *Session) Progress() <-chan ProgressUpdate {
	return s.progress
}

// Send queues an event. Events are dropped when the buffer is full or the
// session is already closed.
func (s *Session) Send(typ, msg string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.progress <- ProgressUpdate{Type: typ, Message: msg, Data: data}:
	default:
	}
}

func (s *Session) close() {
	s.CancelFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.progress)
	}
}

// SessionManager tracks one active session per owner.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Create starts a session for owner, closing the owner's previous one.
func (sm *SessionManager) Create(owner string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if existing, ok := sm.sessions[owner]; ok {
		existing.close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Ctx:       ctx,
		CancelFn:  cancel,
		CreatedAt: time.Now(),
		progress:  make(chan ProgressUpdate, progressBuffer),
	}
	sm.sessions[owner] = s
	return s
}

func (sm *SessionManager) Get(owner string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[owner]
	return s, ok
}

// GetByID finds a session by its server-side ID.
func (sm *SessionManager) GetByID(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, s := range sm.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Remove closes s if it is still the owner's current session.
func (sm *SessionManager) Remove(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cur, ok := sm.sessions[s.Owner]; ok && cur == s {
		delete(sm.sessions, s.Owner)
	}
	s.close()
}

// CleanupStale closes sessions older than maxAge and returns how many.
func (sm *SessionManager) CleanupStale(maxAge time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	n := 0
	now := time.Now()
	for owner, s := range sm.sessions {
		if now.Sub(s.CreatedAt) > maxAge {
			s.close()
			delete(sm.sessions, owner)
			n++
		}
	}
	return n
}

func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
