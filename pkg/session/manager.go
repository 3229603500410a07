package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/harun/groqchat/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// DefaultIdleTimeout is how long an untouched session is kept
const DefaultIdleTimeout = time.Hour

// Manager owns every live session of the process
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a manager that expires sessions idle for longer than idleTimeout
func NewManager(idleTimeout time.Duration) *Manager {
	observability.EnsureRegistered()

	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Create starts a new empty session with a fresh id
func (m *Manager) Create() (*Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	sess := newSession(id, m.now())

	m.mu.Lock()
	m.sessions[id] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(count)
	log.Debug().Str("session_id", id).Msg("Session created")

	return sess, nil
}

// Get returns the session for id and marks it active
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		sess.Touch(m.now())
	}
	return sess, ok
}

// GetOrCreate returns the session for id, or a new session with a fresh id
// when id is unknown. Client supplied ids are never adopted.
func (m *Manager) GetOrCreate(id string) (*Session, bool, error) {
	if sess, ok := m.Get(id); ok {
		return sess, false, nil
	}

	sess, err := m.Create()
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Delete removes the session for id
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		observability.SetActiveSessions(count)
		log.Debug().Str("session_id", id).Msg("Session deleted")
	}
	return ok
}

// Exists reports whether id names a live session without marking it active
func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleTimeout returns the configured idle timeout
func (m *Manager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Sweep removes sessions idle since before now minus the idle timeout.
// Sessions with a turn in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idleTimeout)

	m.mu.Lock()
	removed := 0
	for id, sess := range m.sessions {
		if !sess.LastActivity().Before(cutoff) || sess.busy() {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	count := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(count)
	if removed > 0 {
		observability.RecordSessionsExpired(removed)
		log.Info().
			Int("removed", removed).
			Int("remaining", count).
			Msg("Expired idle sessions")
	}

	return removed
}
