package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(10)

		for i := 0; i < 10; i++ {
			allowed, reason := limiter.Acquire()
			assert.True(t, allowed, "request %d should be allowed", i)
			assert.Empty(t, reason)
		}
	})

	t.Run("should reject requests over limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(5)

		for i := 0; i < 5; i++ {
			allowed, _ := limiter.Acquire()
			require.True(t, allowed)
		}

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, "rate limit exceeded", reason)
		assert.Len(t, limiter.requests, 5, "a rejected request is not recorded")
	})

	t.Run("should allow requests after window expires", func(t *testing.T) {
		now := time.Now()
		limiter := NewClientRateLimiter(2)
		limiter.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Acquire()
			require.True(t, allowed)
		}

		allowed, _ := limiter.Acquire()
		assert.False(t, allowed)

		now = now.Add(time.Minute + time.Second)

		allowed, reason := limiter.Acquire()
		assert.True(t, allowed)
		assert.Empty(t, reason)
	})

	t.Run("should count concurrent callers exactly", func(t *testing.T) {
		limiter := NewClientRateLimiter(25)

		var wg sync.WaitGroup
		var mu sync.Mutex
		granted := 0
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Acquire(); ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 25, granted)
	})
}

func TestClientRateLimiter_UpdateLimit(t *testing.T) {
	t.Run("should apply a raised limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(2)
		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Acquire()
			require.True(t, allowed)
		}

		limiter.UpdateLimit(3)

		allowed, _ := limiter.Acquire()
		assert.True(t, allowed)
		allowed, _ = limiter.Acquire()
		assert.False(t, allowed)
	})

	t.Run("should count the current window against a lowered limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(10)
		for i := 0; i < 3; i++ {
			allowed, _ := limiter.Acquire()
			require.True(t, allowed)
		}

		limiter.UpdateLimit(2)

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, "rate limit exceeded", reason)
	})
}

func TestLimiterSet(t *testing.T) {
	t.Run("should keep one limiter per session", func(t *testing.T) {
		set := newLimiterSet(3)

		a := set.forSession("a")
		assert.Same(t, a, set.forSession("a"))
		assert.NotSame(t, a, set.forSession("b"))
	})

	t.Run("should prune limiters of dead sessions", func(t *testing.T) {
		set := newLimiterSet(3)
		set.forSession("a")
		set.forSession("b")

		removed := set.prune(func(id string) bool { return id == "a" })

		assert.Equal(t, 1, removed)
		assert.Len(t, set.limiters, 1)
	})

	t.Run("should apply a new limit to existing and future sessions", func(t *testing.T) {
		set := newLimiterSet(1)
		existing := set.forSession("a")
		allowed, _ := existing.Acquire()
		require.True(t, allowed)

		set.setLimit(2)

		allowed, _ = existing.Acquire()
		assert.True(t, allowed)

		fresh := set.forSession("b")
		for i := 0; i < 2; i++ {
			allowed, _ = fresh.Acquire()
			assert.True(t, allowed)
		}
		allowed, _ = fresh.Acquire()
		assert.False(t, allowed)
	})
}
