package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	t.Run("should create sessions with distinct ids", func(t *testing.T) {
		m := NewManager(time.Hour)

		a, err := m.Create()
		require.NoError(t, err)
		b, err := m.Create()
		require.NoError(t, err)

		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, 2, m.Count())
	})

	t.Run("should return the existing session", func(t *testing.T) {
		m := NewManager(time.Hour)
		sess, err := m.Create()
		require.NoError(t, err)

		got, created, err := m.GetOrCreate(sess.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Same(t, sess, got)
	})

	t.Run("should not adopt unknown ids", func(t *testing.T) {
		m := NewManager(time.Hour)

		got, created, err := m.GetOrCreate("attacker-chosen")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, "attacker-chosen", got.ID)

		_, ok := m.Get("attacker-chosen")
		assert.False(t, ok)
	})

	t.Run("should isolate transcripts between sessions", func(t *testing.T) {
		m := NewManager(time.Hour)
		a, _ := m.Create()
		b, _ := m.Create()

		a.Append(NewMessage(RoleUser, "only in a"))

		assert.Equal(t, 1, a.Transcript().Len())
		assert.Equal(t, 0, b.Transcript().Len())
	})

	t.Run("should delete sessions", func(t *testing.T) {
		m := NewManager(time.Hour)
		sess, _ := m.Create()

		assert.True(t, m.Delete(sess.ID))
		assert.False(t, m.Delete(sess.ID))
		assert.Equal(t, 0, m.Count())
	})

	t.Run("should check existence without touching", func(t *testing.T) {
		m := NewManager(time.Hour)
		sess, _ := m.Create()
		before := sess.LastActivity()

		assert.True(t, m.Exists(sess.ID))
		assert.False(t, m.Exists("missing"))
		assert.Equal(t, before, sess.LastActivity())
	})

	t.Run("should default the idle timeout", func(t *testing.T) {
		m := NewManager(0)
		assert.Equal(t, DefaultIdleTimeout, m.IdleTimeout())
	})
}

func TestManagerSweep(t *testing.T) {
	t.Run("should remove idle sessions only", func(t *testing.T) {
		m := NewManager(time.Hour)
		base := time.Now()
		m.now = func() time.Time { return base }

		idle, _ := m.Create()
		fresh, _ := m.Create()
		fresh.Touch(base.Add(50 * time.Minute))

		removed := m.Sweep(base.Add(90 * time.Minute))

		assert.Equal(t, 1, removed)
		_, ok := m.Get(idle.ID)
		assert.False(t, ok)
		_, ok = m.Get(fresh.ID)
		assert.True(t, ok)
	})

	t.Run("should keep sessions with a turn in flight", func(t *testing.T) {
		m := NewManager(time.Minute)
		base := time.Now()
		m.now = func() time.Time { return base }

		sess, _ := m.Create()
		sess.LockTurn()
		defer sess.UnlockTurn()

		assert.Equal(t, 0, m.Sweep(base.Add(time.Hour)))
		assert.Equal(t, 1, m.Count())
	})
}
