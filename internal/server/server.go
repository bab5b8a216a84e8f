// Package server wires the Config Store, Storage Gateway, Quota Manager,
// Rule Evaluator, Direct Transfer broker, JSON API and WebDAV adapter into
// one http.Server serving every configured share over both protocols at
// once. Middleware composition follows §4.8's fixed order.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/chfs/chfs/internal/api"
	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/config"
	"github.com/chfs/chfs/internal/directtransfer"
	"github.com/chfs/chfs/internal/logging"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/chfs/chfs/internal/middleware"
	"github.com/chfs/chfs/internal/quota"
	"github.com/chfs/chfs/internal/rules"
	"github.com/chfs/chfs/internal/storage"
	"github.com/chfs/chfs/internal/webdavfs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/webdav"
)

// Server owns the fully wired HTTP surface: JSON API, WebDAV mounts, and
// the ambient health/metrics endpoints.
type Server struct {
	cfg       *config.Store
	log       *logrus.Logger
	metrics   *metrics.Metrics
	gateway   *storage.Gateway
	quota     *quota.Manager
	checker   *auth.Checker
	transfers *directtransfer.Store

	rateLimiter *middleware.RateLimiter
	concurrency *middleware.ConcurrencyLimiter
	ipFilter    *middleware.IPFilter

	httpServer *http.Server
}

// Options bundles the construction parameters that come from the CLI
// layer: paths plus the handful of flag/env overrides §6 lists
// (--host, --port, --reload, --debug) that sit above the declarative
// chfs.yaml document.
type Options struct {
	ConfigPath  string
	DataDir     string
	Host        string
	Port        int
	ForceReload bool
	Debug       bool
}

// New builds a Server rooted at the given config, wiring every component
// from the current snapshot and registering a reload callback so the
// rate limiter, concurrency cap, IP filter, and share set stay current
// without a restart.
func New(opts Options) (*Server, error) {
	cfg, err := config.New(opts.ConfigPath, opts.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("server: load config: %w", err)
	}

	snap := cfg.Current()
	if opts.Host != "" {
		snap.Server.Addr = opts.Host
	}
	if opts.Port != 0 {
		snap.Server.Port = opts.Port
	}
	if opts.ForceReload {
		snap.HotReload.Enabled = true
	}
	if opts.Debug {
		snap.Logging.Level = "debug"
	}

	log, err := logging.New(snap.Logging)
	if err != nil {
		return nil, fmt.Errorf("server: configure logging: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	q := quota.NewManager()
	gw := storage.NewGateway(snap.Shares, q)
	checker := auth.New(cfg)

	transfers, err := directtransfer.New(filepath.Join(opts.DataDir, "direct_transfers"))
	if err != nil {
		return nil, fmt.Errorf("server: load direct transfer store: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		gateway:   gw,
		quota:     q,
		checker:   checker,
		transfers: transfers,
	}

	s.rateLimiter = middleware.NewRateLimiter(snap.RateLimit.Burst, snap.RateLimit.RPS, m)
	s.concurrency = middleware.NewConcurrencyLimiter(snap.RateLimit.MaxConcurrent, m)
	s.ipFilter = middleware.NewIPFilter(middleware.IPFilterConfig{Allow: snap.IPFilter.Allow, Deny: snap.IPFilter.Deny})

	cfg.AddReloadCallback(func(old, new *config.Snapshot) {
		s.gateway.SetShares(new.Shares)
		s.rateLimiter.Update(new.RateLimit.Burst, new.RateLimit.RPS)
		s.concurrency.Update(new.RateLimit.MaxConcurrent)
		s.ipFilter.Update(middleware.IPFilterConfig{Allow: new.IPFilter.Allow, Deny: new.IPFilter.Deny})
	})

	if snap.HotReload.Enabled {
		if err := cfg.StartWatching(); err != nil {
			log.WithField("error", err).Warn("config hot-reload watcher failed to start")
		}
	}

	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	apiServer := api.NewServer(cfg, checker, gw, q, transfers, m)
	apiServer.Routes(router)

	if snap.Dav.Enabled {
		// Mounted once per share at startup; rule changes are picked up
		// live through evalFn's cfg.Current() call, but adding or
		// removing a share from chfs.yaml still requires a restart.
		s.mountWebDAV(router, snap)
	}

	chain := &middleware.Chain{
		Log:         log,
		Metrics:     m,
		IPFilter:    s.ipFilter,
		RateLimiter: s.rateLimiter,
		Concurrency: s.concurrency,
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", snap.Server.Addr, snap.Server.Port),
		Handler: chain.Wrap(router),
	}

	return s, nil
}

func (s *Server) mountWebDAV(router chi.Router, snap *config.Snapshot) {
	// webdav.Handler answers every method with 500 when its LockSystem is
	// nil, so the in-memory lock store is always supplied; with lockManager
	// disabled, LOCK and UNLOCK are answered with 501 before they reach it.
	ls := webdav.NewMemLS()
	evalFn := func() *rules.Evaluator {
		cur := s.cfg.Current()
		return rules.New(cur.Rules, cur.ShareNames())
	}
	for _, share := range snap.Shares {
		prefix := snap.Dav.MountPath + "/" + share.Name
		handler := webdavfs.Mount(share.Name, share.Path, prefix, s.checker, evalFn, ls, snap.Dav.PropertyManager, s.metrics)
		if !snap.Dav.LockManager {
			inner := handler
			handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == "LOCK" || r.Method == "UNLOCK" {
					w.WriteHeader(http.StatusNotImplemented)
					return
				}
				inner.ServeHTTP(w, r)
			})
		}
		router.Mount(prefix, handler)
	}
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is
// called or a non-graceful error occurs.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("chfs listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the config watcher.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cfg.StopWatching()
	return s.httpServer.Shutdown(ctx)
}
