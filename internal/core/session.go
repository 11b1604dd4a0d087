package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/metrics"
)

// SessionContext is the per-session metadata handed to the orchestrator and
// to every tool call.
type SessionContext struct {
	UserID int64 // 0 when the customer could not be identified
	Family family.Family
}

func (sc SessionContext) HasUser() bool { return sc.UserID > 0 }

// Conversation is the in-memory state of one chat.
type Conversation struct {
	UserName     string
	ProductModel string
	Messages     []Message
}

type Session struct {
	ID      string
	Context SessionContext

	mu           sync.Mutex // Serialises turns within the session
	conversation Conversation
	lastActive   time.Time
}

// Conversation returns a copy of the session's conversation state.
func (s *Session) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversation
	conv.Messages = append([]Message(nil), s.conversation.Messages...)
	return conv
}

// SessionRegistry holds live chat sessions in memory.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session), now: time.Now}
}

func (r *SessionRegistry) Create(sc SessionContext, conv Conversation) *Session {
	session := &Session{
		ID:           uuid.NewString(),
		Context:      sc,
		conversation: conv,
		lastActive:   r.now(),
	}
	r.mu.Lock()
	r.sessions[session.ID] = session
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return session
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// End discards the session and its conversation.
func (r *SessionRegistry) End(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(n))
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle ends sessions that have not handled a message for maxIdle. A
// session busy with a turn is never evicted.
func (r *SessionRegistry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	evicted := 0
	for id, session := range r.sessions {
		if !session.mu.TryLock() {
			continue
		}
		if session.lastActive.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
		session.mu.Unlock()
	}
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *SessionRegistry) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(maxIdle); n > 0 {
				log.WithField("evicted", n).Info("ended idle chat sessions")
			}
		}
	}
}
