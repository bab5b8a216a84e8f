package middleware

import (
	"context"
	"time"

	"net/http"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/logging"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AccessLog attaches a request-scoped *logrus.Entry (tagged with a
// generated request id, method, path and client ip) to the context, logs
// status, duration_ms and the raw user agent once the handler returns, and
// feeds the Metrics counters. Response byte counts are not logged, and a
// "user" field appears only when a handler calls WithPrincipal.
// Ordered first in §4.8's chain so every later middleware can log
// through logging.FromContext.
func AccessLog(log *logrus.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := uuid.NewString()
			entry := log.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"ip":         auth.ClientIP(r),
			})
			ctx := logging.WithEntry(r.Context(), entry)
			r = r.WithContext(ctx)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			if m != nil {
				m.IncRequests(r.Method)
				m.IncActive()
				defer m.DecActive()
			}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			if m != nil {
				m.RecordResponse(rec.status, elapsed)
			}
			entry.WithFields(logrus.Fields{
				"status":      rec.status,
				"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
				"ua":          r.UserAgent(),
			}).Info("request")
		})
	}
}

// WithPrincipal lets downstream handlers stash the authenticated
// username onto the log entry once auth succeeds.
func WithPrincipal(ctx context.Context, username string) {
	logging.FromContext(ctx).Data["user"] = username
}
