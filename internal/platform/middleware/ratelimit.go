package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"datashare/pkg/requestcontext"
)

// slidingWindow tracks request timestamps per key. The sliding window avoids
// the burst-at-boundary problem of fixed windows.
type slidingWindow struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string][]time.Time
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// allow records an attempt for key and reports whether it fits the limit,
// along with how many attempts remain and when the oldest one falls out.
func (s *slidingWindow) allow(key string, limit int, now time.Time) (bool, int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	kept := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.entries[key] = kept
		return false, 0, kept[0].Add(s.window)
	}

	kept = append(kept, now)
	s.entries[key] = kept
	return true, limit - len(kept), kept[0].Add(s.window)
}

// RateLimit bounds requests per client IP with a sliding window. Intended for
// the public auth endpoints where credential stuffing and OTP brute force
// live; authenticated routes rely on token checks instead.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	store := newSlidingWindow(window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := requestcontext.ClientIP(ctx)
			if key == "" {
				key = r.RemoteAddr
			}

			allowed, remaining, resetAt := store.allow(key, limit, requestcontext.Now(ctx))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","message":"too many requests, slow down"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
