package middleware

import (
	"net/http"

	"github.com/chfs/chfs/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Chain bundles the five request-scoped middlewares of §4.8 and composes
// them in the fixed order: access log (outermost, so every later stage
// can log) → exception shield → IP filter → rate limit → concurrency cap
// (innermost, closest to the handler).
type Chain struct {
	Log         *logrus.Logger
	Metrics     *metrics.Metrics
	IPFilter    *IPFilter
	RateLimiter *RateLimiter
	Concurrency *ConcurrencyLimiter
}

func (c *Chain) Wrap(handler http.Handler) http.Handler {
	h := handler
	h = c.Concurrency.Middleware(h)
	h = c.RateLimiter.Middleware(h)
	h = c.IPFilter.Middleware(h)
	h = ExceptionShield(c.Metrics)(h)
	h = AccessLog(c.Log, c.Metrics)(h)
	return h
}
