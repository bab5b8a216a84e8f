package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/logging"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/chfs/chfs/internal/model"
)

// writeError renders err as the uniform {code,msg,data} envelope from
// model.APIResponse, setting the mirrored HTTP status from its Kind.
func writeError(w http.ResponseWriter, e *chfserr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(model.Err(e.Kind.ResponseCode(), e.Error()))
}

// statusRecorder captures the status code a downstream handler wrote, so
// the exception shield and access log can observe it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

// ExceptionShield recovers panics raised by inner handlers and renders
// them as an INTERNAL_ERROR envelope instead of crashing the connection.
// Per §4.8 it also increments the error counter, both for a recovered
// panic and for any response whose status is 400 or above.
func ExceptionShield(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if rv := recover(); rv != nil {
					logging.FromContext(r.Context()).WithField("panic", rv).Error("handler panicked")
					if m != nil {
						m.IncErrors()
					}
					writeError(rec, chfserr.New(chfserr.KindInternal, "internal error"))
				}
			}()
			next.ServeHTTP(rec, r)
			if rec.status >= 400 && m != nil {
				m.IncErrors()
			}
		})
	}
}

// RespondError is the entry point handlers use to turn a returned error
// into the uniform envelope; unrecognized errors are mapped to
// KindInternal so nothing ever leaks a bare Go error string as 500 text.
func RespondError(w http.ResponseWriter, err error) {
	if e, ok := chfserr.As(err); ok {
		writeError(w, e)
		return
	}
	writeError(w, chfserr.New(chfserr.KindInternal, err.Error()))
}

// RespondJSON writes a successful {code,msg,data} envelope.
func RespondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(model.OK(data))
}
