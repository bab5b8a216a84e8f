package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/ipfilter"
)

// IPFilterConfig is the minimal snapshot the middleware needs, avoiding a
// direct dependency on internal/config (which itself depends on the
// dynamic stores, not on HTTP concerns).
type IPFilterConfig struct {
	Allow []string
	Deny  []string
}

// IPFilter holds the server-wide allow/deny lists (distinct from the
// per-rule lists the Rule Evaluator checks) and can be hot-swapped on
// config reload.
type IPFilter struct {
	cfg atomic.Pointer[IPFilterConfig]
}

func NewIPFilter(cfg IPFilterConfig) *IPFilter {
	f := &IPFilter{}
	f.Update(cfg)
	return f
}

func (f *IPFilter) Update(cfg IPFilterConfig) {
	f.cfg.Store(&cfg)
}

// Middleware enforces the server-wide IP filter ahead of auth, bypassing
// the well-known whitelisted paths per §4.3/§4.8.
func (f *IPFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ipfilter.Whitelisted(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		cfg := f.cfg.Load()
		ip := auth.ClientIP(r)
		if cfg != nil && !ipfilter.Check(ip, cfg.Allow, cfg.Deny) {
			writeError(w, chfserr.New(chfserr.KindForbidden, "address not permitted"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
