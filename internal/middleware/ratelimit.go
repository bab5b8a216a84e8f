package middleware

import (
	"net/http"
	"sync"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/chfs/chfs/internal/model"
)

// RateLimiter wraps a single shared token bucket, sized (burst, rps) per
// §4.8. Consume is O(1) and mutex-guarded, matching §5's concurrency
// model ("token bucket: mutated under a single mutex").
type RateLimiter struct {
	mu     sync.Mutex
	bucket *model.TokenBucket
	m      *metrics.Metrics
}

// NewRateLimiter builds a limiter with the given burst capacity and
// refill rate (requests per second).
func NewRateLimiter(burst, rps float64, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{bucket: model.NewTokenBucket(burst, rps), m: m}
}

// Update replaces the limiter's capacity/rate in place, preserving the
// mutex (existing goroutines blocked on it are unaffected).
func (rl *RateLimiter) Update(burst, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.bucket = model.NewTokenBucket(burst, rps)
}

func (rl *RateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.bucket.Consume(1)
}

// Middleware returns an http.Handler wrapper enforcing the rate limit: on
// failure it returns 429 with Retry-After: 1, per §4.8.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow() {
			if rl.m != nil {
				rl.m.IncRateLimitHits()
			}
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, chfserr.New(chfserr.KindRateLimited, "rate limit exceeded"))
}
