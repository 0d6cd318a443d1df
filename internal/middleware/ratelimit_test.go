package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	t.Cleanup(rl.Stop)
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(t, h, "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	t.Cleanup(rl.Stop)
	h := rl.Handler(okHandler())

	doRequest(t, h, "10.0.0.1:1234")
	doRequest(t, h, "10.0.0.1:1234")
	rec := doRequest(t, h, "10.0.0.1:1234")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestRateLimiter_TracksClientsSeparately(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	t.Cleanup(rl.Stop)
	h := rl.Handler(okHandler())

	doRequest(t, h, "10.0.0.1:1234")
	rec := doRequest(t, h, "10.0.0.2:1234")

	assert.Equal(t, http.StatusOK, rec.Code, "a second client gets its own window")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()

	h := rl.Handler(okHandler())
	rec := doRequest(t, h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, rec.Code, "limiting keeps working after Stop")
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	t.Cleanup(rl.Stop)
	h := rl.Handler(okHandler())

	doRequest(t, h, "10.0.0.1:1234")
	rec := doRequest(t, h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	time.Sleep(30 * time.Millisecond)

	rec = doRequest(t, h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, rec.Code, "limit should reset after the window elapses")
}
