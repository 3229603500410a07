package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponder struct{}

func (stubResponder) Respond(ctx context.Context, input string, history []Message) (string, error) {
	return "ok", nil
}

func TestSessionEnsureAgent(t *testing.T) {
	t.Run("should build the agent once", func(t *testing.T) {
		sess := New("s1")
		assert.False(t, sess.HasAgent())

		builds := 0
		build := func() (Responder, error) {
			builds++
			return stubResponder{}, nil
		}

		_, created, err := sess.EnsureAgent(build)
		require.NoError(t, err)
		assert.True(t, created)

		_, created, err = sess.EnsureAgent(build)
		require.NoError(t, err)
		assert.False(t, created)

		assert.Equal(t, 1, builds)
		assert.True(t, sess.HasAgent())
	})

	t.Run("should leave the session empty when build fails", func(t *testing.T) {
		sess := New("s2")

		_, _, err := sess.EnsureAgent(func() (Responder, error) {
			return nil, errors.New("boom")
		})

		assert.Error(t, err)
		assert.False(t, sess.HasAgent())
	})
}

func TestSessionTouch(t *testing.T) {
	sess := New("s1")
	start := sess.LastActivity()

	later := start.Add(time.Minute)
	sess.Touch(later)
	assert.Equal(t, later, sess.LastActivity())

	sess.Touch(start)
	assert.Equal(t, later, sess.LastActivity(), "activity time never moves backwards")
}

func TestSessionTurnLock(t *testing.T) {
	sess := New("s1")
	assert.False(t, sess.busy())

	sess.LockTurn()
	assert.True(t, sess.busy())

	sess.UnlockTurn()
	assert.False(t, sess.busy())
}
