// Package api implements the JSON HTTP surface of §4.9: the /api/* route
// table, each handler authenticating via internal/auth, authorizing via
// internal/rules, and delegating to internal/storage, internal/quota,
// internal/directtransfer and internal/config.
package api

import (
	"net/http"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/config"
	"github.com/chfs/chfs/internal/directtransfer"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/chfs/chfs/internal/middleware"
	"github.com/chfs/chfs/internal/quota"
	"github.com/chfs/chfs/internal/rules"
	"github.com/chfs/chfs/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Server wires the dependencies every handler needs.
type Server struct {
	cfg       *config.Store
	auth      *auth.Checker
	gateway   *storage.Gateway
	quota     *quota.Manager
	transfers *directtransfer.Store
	metrics   *metrics.Metrics
}

func NewServer(cfg *config.Store, checker *auth.Checker, gw *storage.Gateway, q *quota.Manager, dt *directtransfer.Store, m *metrics.Metrics) *Server {
	return &Server{cfg: cfg, auth: checker, gateway: gw, quota: q, transfers: dt, metrics: m}
}

// evaluator builds a fresh Rule Evaluator from the current snapshot; rules
// and share names can change between requests on reload, so this is
// cheap and always current rather than cached.
func (s *Server) evaluator() *rules.Evaluator {
	snap := s.cfg.Current()
	return rules.New(snap.Rules, snap.ShareNames())
}

// Routes mounts the full /api tree on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Get("/list", s.handleList)
		r.Post("/upload", s.handleUpload)
		r.Post("/mkdir", s.handleMkdir)
		r.Post("/rename", s.handleRename)
		r.Post("/delete", s.handleDelete)
		r.Get("/download", s.handleDownload)
		r.Post("/register", s.handleRegister)

		r.Get("/admin/status", s.handleAdminStatus)
		r.Put("/admin/shares/{name}/quota", s.handleAdminSetQuota)
		r.Put("/admin/server/custom-urls", s.handleAdminSetCustomURLs)
		r.Get("/admin/users", s.handleAdminListUsers)
		r.Delete("/admin/users/{username}", s.handleAdminDeleteUser)

		r.Get("/direct-transfer/recipients", s.handleTransferRecipients)
		r.Post("/direct-transfer/send", s.handleTransferSend)
		r.Get("/direct-transfer/list", s.handleTransferList)
		r.Get("/direct-transfer/download/{id}", s.handleTransferDownload)
		r.Delete("/direct-transfer/{id}", s.handleTransferDelete)
	})
}

// principal resolves the authenticated user or writes an AUTH_REQUIRED
// response and returns ok=false.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := s.auth.RequireAuth(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="chfs"`)
		if s.metrics != nil {
			s.metrics.IncAuthFailures()
		}
		middleware.RespondError(w, err)
		return "", false
	}
	return user, true
}

// requireLocalAdmin additionally enforces the loopback check shared by
// every /api/admin/* route.
func (s *Server) requireLocalAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := s.principal(w, r)
	if !ok {
		return "", false
	}
	if err := auth.RequireLocalAdmin(auth.ClientIP(r)); err != nil {
		middleware.RespondError(w, err)
		return "", false
	}
	return user, true
}
