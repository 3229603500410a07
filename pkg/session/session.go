package session

import (
	"context"
	"sync"
	"time"
)

// Responder produces the assistant reply for one user input. history is the
// transcript as it stood before input was appended.
type Responder interface {
	Respond(ctx context.Context, input string, history []Message) (string, error)
}

// Session is the state of one connected client
type Session struct {
	ID        string
	CreatedAt time.Time

	transcript Transcript

	mu           sync.Mutex
	agent        Responder
	lastActivity time.Time

	turnMu sync.Mutex
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// New creates a standalone session outside any Manager
func New(id string) *Session {
	return newSession(id, time.Now())
}

// Append adds msg to the session transcript
func (s *Session) Append(msg Message) {
	s.transcript.Append(msg)
}

// Messages returns a copy of the session transcript
func (s *Session) Messages() []Message {
	return s.transcript.Messages()
}

// Transcript exposes the session transcript
func (s *Session) Transcript() *Transcript {
	return &s.transcript
}

// Agent returns the bootstrapped responder, nil until a credential was accepted
func (s *Session) Agent() Responder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// HasAgent reports whether the session was bootstrapped
func (s *Session) HasAgent() bool {
	return s.Agent() != nil
}

// EnsureAgent runs build only when the session has no responder yet and
// stores its result. The returned bool reports whether build ran.
func (s *Session) EnsureAgent(build func() (Responder, error)) (Responder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agent != nil {
		return s.agent, false, nil
	}

	agent, err := build()
	if err != nil {
		return nil, true, err
	}
	s.agent = agent
	return agent, true, nil
}

// Touch records activity at now
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// LastActivity returns the time of the most recent activity
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// LockTurn blocks until no other turn is running on this session
func (s *Session) LockTurn() {
	s.turnMu.Lock()
}

// UnlockTurn releases the turn lock
func (s *Session) UnlockTurn() {
	s.turnMu.Unlock()
}

// busy reports whether a turn currently holds the lock
func (s *Session) busy() bool {
	if !s.turnMu.TryLock() {
		return true
	}
	s.turnMu.Unlock()
	return false
}
