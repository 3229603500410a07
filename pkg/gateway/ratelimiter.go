package gateway

import (
	"sync"
	"time"
)

// ClientRateLimiter implements sliding window rate limiting per session
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	requests          []time.Time
	now               func() time.Time
}

// NewClientRateLimiter creates a rate limiter allowing requestsPerMinute
// requests in any one-minute window
func NewClientRateLimiter(requestsPerMinute int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		requests:          make([]time.Time, 0),
		now:               time.Now,
	}
}

// Acquire checks the limit and records the request in one step
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	if len(r.requests) >= r.requestsPerMinute {
		return false, "rate limit exceeded"
	}

	r.requests = append(r.requests, r.now())
	return true, ""
}

// UpdateLimit changes the allowed requests per minute. Requests already in
// the window keep counting against the new limit.
func (r *ClientRateLimiter) UpdateLimit(requestsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsPerMinute = requestsPerMinute
}

// pruneLocked drops requests older than one minute
func (r *ClientRateLimiter) pruneLocked() {
	cutoff := r.now().Add(-time.Minute)
	valid := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}
	r.requests = valid
}

// limiterSet hands out one limiter per session id
type limiterSet struct {
	mu                sync.Mutex
	requestsPerMinute int
	limiters          map[string]*ClientRateLimiter
}

func newLimiterSet(requestsPerMinute int) *limiterSet {
	return &limiterSet{
		requestsPerMinute: requestsPerMinute,
		limiters:          make(map[string]*ClientRateLimiter),
	}
}

// forSession returns the limiter for sessionID
func (l *limiterSet) forSession(sessionID string) *ClientRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[sessionID]
	if !ok {
		limiter = NewClientRateLimiter(l.requestsPerMinute)
		l.limiters[sessionID] = limiter
	}
	return limiter
}

// setLimit applies requestsPerMinute to existing and future limiters
func (l *limiterSet) setLimit(requestsPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestsPerMinute = requestsPerMinute
	for _, limiter := range l.limiters {
		limiter.UpdateLimit(requestsPerMinute)
	}
}

func (l *limiterSet) limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.requestsPerMinute
}

// prune forgets limiters whose session no longer exists
func (l *limiterSet) prune(alive func(sessionID string) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id := range l.limiters {
		if !alive(id) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}
