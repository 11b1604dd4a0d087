package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistryLifecycle(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Create(SessionContext{UserID: 1}, Conversation{UserName: "Ali"})
	require.NotEmpty(t, s.ID)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, "Ali", got.Conversation().UserName)

	require.NoError(t, r.End(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.End(s.ID), ErrSessionNotFound)
}

func TestSessionRegistryEvictIdle(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewSessionRegistry()
	r.now = func() time.Time { return now }

	old := r.Create(SessionContext{}, Conversation{})
	now = now.Add(50 * time.Minute)
	fresh := r.Create(SessionContext{}, Conversation{})
	busy := r.Create(SessionContext{}, Conversation{})
	busy.lastActive = now.Add(-2 * time.Hour)
	busy.mu.Lock()

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, r.EvictIdle(time.Hour))
	busy.mu.Unlock()

	_, err := r.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)
	_, err = r.Get(busy.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}
