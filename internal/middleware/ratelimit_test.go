package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type blockCounter struct{ n int }

func (b *blockCounter) RateLimitBlocked() { b.n++ }

func newLimiter(rate int, whitelist []string, b Blocker) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(rate, time.Minute, whitelist, b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rl.now = clock.now
	return rl, clock
}

func TestAllowWithinWindow(t *testing.T) {
	rl, clock := newLimiter(2, nil, nil)

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)

	clock.advance(15 * time.Second)
	ok, retry := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 45*time.Second, retry)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "limits are per IP")

	clock.advance(45 * time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "new window")
}

func TestMiddlewareRejects(t *testing.T) {
	b := &blockCounter{}
	rl, _ := newLimiter(1, []string{"10.0.0.1"}, b)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/stations", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("1.1.1.1:1000").Code)
	rec := do("1.1.1.1:1001")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
	assert.Equal(t, 1, b.n)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5000").Code, "whitelisted")
	}
}

func TestNonPositiveWindowFallsBackToDefault(t *testing.T) {
	for _, window := range []time.Duration{0, -time.Second} {
		rl := NewRateLimiter(1, window, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
		assert.Equal(t, DefaultWindow, rl.window)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NotPanics(t, func() { rl.Run(ctx) })

		ok, _ := rl.Allow("1.1.1.1")
		assert.True(t, ok)
		ok, _ = rl.Allow("1.1.1.1")
		assert.False(t, ok, "second request in the same window is refused")
	}
}

func TestEvictIdle(t *testing.T) {
	rl, clock := newLimiter(5, nil, nil)
	rl.Allow("a")
	clock.advance(90 * time.Second)
	rl.Allow("b")
	clock.advance(40 * time.Second)

	assert.Equal(t, 1, rl.evictIdle())
	assert.Equal(t, 1, rl.Stats().TrackedIPs)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "1.1.1.1:1", "9.9.9.9"},
		{"forwarded with port", map[string]string{"X-Forwarded-For": "9.9.9.9:443"}, "1.1.1.1:1", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8"}, "1.1.1.1:1", "8.8.8.8"},
		{"remote addr", nil, "7.7.7.7:1234", "7.7.7.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
