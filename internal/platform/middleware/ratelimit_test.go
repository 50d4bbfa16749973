package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/pkg/requestcontext"
)

func rateLimitedHandler(limit int, window time.Duration) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RateLimit(limit, window)(next)
}

func requestFromIP(ip string, at time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, "test-agent")
	ctx = requestcontext.WithTime(ctx, at)
	return req.WithContext(ctx)
}

func TestRateLimit_AllowsUpToLimit(t *testing.T) {
	h := rateLimitedHandler(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestFromIP("10.0.0.1", now))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", now))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_KeysByClientIP(t *testing.T) {
	h := rateLimitedHandler(1, time.Minute)
	now := time.Now()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", now))
	require.Equal(t, http.StatusOK, w.Code)

	// A different client is not affected by the first one's usage.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.2", now))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", now))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_WindowSlides(t *testing.T) {
	h := rateLimitedHandler(1, time.Minute)
	start := time.Now()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", start))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", start.Add(30*time.Second)))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// The first attempt has aged out of the window.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", start.Add(61*time.Second)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_SetsHeaders(t *testing.T) {
	h := rateLimitedHandler(5, time.Minute)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFromIP("10.0.0.1", time.Now()))

	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}
