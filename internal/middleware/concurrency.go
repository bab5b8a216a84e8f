package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/chfs/chfs/internal/metrics"
)

// graceWait is how long a request waits for a free slot before being
// rejected as 429, per §4.8's "brief grace period rather than an
// immediate reject" note.
const graceWait = 100 * time.Millisecond

// ConcurrencyLimiter caps the number of requests in flight at once using
// a resizable semaphore: MaxConcurrent can change on config reload
// without restarting the server.
type ConcurrencyLimiter struct {
	mu    sync.Mutex
	limit int
	cur   int
	cond  *sync.Cond
	m     *metrics.Metrics
}

func NewConcurrencyLimiter(limit int, m *metrics.Metrics) *ConcurrencyLimiter {
	c := &ConcurrencyLimiter{limit: limit, m: m}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Update resizes the cap; waiters are woken so they can recheck.
func (c *ConcurrencyLimiter) Update(limit int) {
	c.mu.Lock()
	c.limit = limit
	c.mu.Unlock()
	c.cond.Broadcast()
}

// tryAcquire blocks until a slot is free or deadline passes, returning
// false on timeout.
func (c *ConcurrencyLimiter) tryAcquire(deadline time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.cur >= c.limit {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, c.cond.Broadcast)
		c.cond.Wait()
		timer.Stop()
		if time.Now().After(deadline) && c.cur >= c.limit {
			return false
		}
	}
	c.cur++
	return true
}

func (c *ConcurrencyLimiter) release() {
	c.mu.Lock()
	c.cur--
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Middleware enforces the cap, last in §4.8's chain so rate-limited or
// IP-denied requests never occupy a slot.
func (c *ConcurrencyLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.tryAcquire(time.Now().Add(graceWait)) {
			if c.m != nil {
				c.m.IncRateLimitHits()
			}
			writeRateLimited(w)
			return
		}
		defer c.release()
		next.ServeHTTP(w, r)
	})
}
