package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/ratelimiter"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := ratelimiter.New(ratelimiter.Config{Requests: 0, Window: time.Minute})
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	_, err = ratelimiter.New(ratelimiter.Config{Requests: 10})
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := ratelimiter.New(ratelimiter.Config{Requests: 10, Window: time.Minute}, ratelimiter.WithClock(c.now))
	require.NoError(t, err)

	for i := range 10 {
		res := l.Allow("1.2.3.4")
		require.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 9-i, res.Remaining)
		assert.Equal(t, 10, res.Limit)
	}

	denied := l.Allow("1.2.3.4")
	assert.False(t, denied.Allowed)
	assert.InDelta(t, float64(6*time.Second), float64(denied.RetryAfter), float64(time.Millisecond))

	// other keys have their own bucket
	assert.True(t, l.Allow("5.6.7.8").Allowed)

	c.advance(7 * time.Second)
	assert.True(t, l.Allow("1.2.3.4").Allowed)
	assert.False(t, l.Allow("1.2.3.4").Allowed)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := ratelimiter.New(ratelimiter.Config{Requests: 2, Window: time.Minute}, ratelimiter.WithClock(c.now))
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := ratelimiter.Middleware(l, func(r *http.Request) string { return r.Header.Get("X-Key") }, nil)(next)

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set("X-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("a").Code)
	rec := call("a")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = call("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	// empty key is not throttled
	for range 5 {
		assert.Equal(t, http.StatusNoContent, call("").Code)
	}
}
