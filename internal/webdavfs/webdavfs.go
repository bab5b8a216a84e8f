// Package webdavfs implements the WebDAV Adapter of §4.10: one
// webdav.FileSystem per share, backed directly by the share's root
// directory, with every resource method re-running the Rule Evaluator
// before delegating.
//
// Per §9's design note ("small sum-type Operation dispatched by a single
// policy check"), every webdav.FileSystem/webdav.File method funnels
// through authorize, rather than scattering ad hoc checks the way a
// per-method override would.
package webdavfs

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/metrics"
	"github.com/chfs/chfs/internal/model"
	"github.com/chfs/chfs/internal/pathsafe"
	"github.com/chfs/chfs/internal/rules"
	"golang.org/x/net/webdav"
)

// Operation is the sum type §9 asks for, covering every WebDAV resource
// method chfs exposes.
type Operation int

const (
	OpRead Operation = iota
	OpWrite
	OpDelete
)

func (op Operation) permission() model.Permission {
	switch op {
	case OpWrite:
		return model.PermWrite
	case OpDelete:
		return model.PermDelete
	default:
		return model.PermRead
	}
}

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxIP
)

func withPrincipal(ctx context.Context, user, ip string) context.Context {
	ctx = context.WithValue(ctx, ctxUser, user)
	return context.WithValue(ctx, ctxIP, ip)
}

func principalFrom(ctx context.Context) (user, ip string) {
	u, _ := ctx.Value(ctxUser).(string)
	i, _ := ctx.Value(ctxIP).(string)
	return u, i
}

// EvaluatorFunc returns the current Rule Evaluator; a func rather than a
// stored pointer so the adapter always sees the latest rule set after a
// config reload.
type EvaluatorFunc func() *rules.Evaluator

// adapter implements webdav.FileSystem against one share's root,
// authorizing every call through evalFn.
type adapter struct {
	shareName string
	root      string
	evalFn    EvaluatorFunc
	metrics   *metrics.Metrics
}

func (a *adapter) authorize(ctx context.Context, op Operation, rel string) error {
	user, ip := principalFrom(ctx)
	ok, _ := a.evalFn().Evaluate(user, op.permission(), a.shareName, rel, ip)
	if !ok {
		return webdav.ErrForbidden
	}
	return nil
}

func (a *adapter) resolve(name string) (string, string, error) {
	rel := strings.TrimPrefix(name, "/")
	abs, err := pathsafe.Resolve(a.root, rel)
	if err != nil {
		return "", "", os.ErrPermission
	}
	return rel, abs, nil
}

func (a *adapter) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	rel, abs, err := a.resolve(name)
	if err != nil {
		return err
	}
	if err := a.authorize(ctx, OpWrite, rel); err != nil {
		return err
	}
	return os.Mkdir(abs, 0o755)
}

func (a *adapter) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	rel, abs, err := a.resolve(name)
	if err != nil {
		return nil, err
	}

	op := OpRead
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		op = OpWrite
	}
	if err := a.authorize(ctx, op, rel); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(abs, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &file{File: f, adapter: a, ctx: ctx, rel: rel}, nil
}

func (a *adapter) RemoveAll(ctx context.Context, name string) error {
	rel, abs, err := a.resolve(name)
	if err != nil {
		return err
	}
	if err := a.authorize(ctx, OpDelete, rel); err != nil {
		return err
	}
	return os.RemoveAll(abs)
}

// Rename requires destination write access in addition to source delete
// access, per §4.10 ("on MOVE, both source D and destination W are
// required").
func (a *adapter) Rename(ctx context.Context, oldName, newName string) error {
	oldRel, oldAbs, err := a.resolve(oldName)
	if err != nil {
		return err
	}
	newRel, newAbs, err := a.resolve(newName)
	if err != nil {
		return err
	}
	if err := a.authorize(ctx, OpDelete, oldRel); err != nil {
		return err
	}
	if err := a.authorize(ctx, OpWrite, newRel); err != nil {
		return err
	}
	return os.Rename(oldAbs, newAbs)
}

func (a *adapter) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	rel, abs, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := a.authorize(ctx, OpRead, rel); err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

// file wraps *os.File so Readdir can filter children by a per-child R
// check before returning them, per §4.10.
type file struct {
	*os.File
	adapter *adapter
	ctx     context.Context
	rel     string
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	if f.adapter.metrics != nil && n > 0 {
		f.adapter.metrics.AddDownloadBytes(int64(n))
	}
	return n, err
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	if f.adapter.metrics != nil && n > 0 {
		f.adapter.metrics.AddUploadBytes(int64(n))
	}
	return n, err
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	entries, err := f.File.Readdir(count)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		childRel := e.Name()
		if f.rel != "" {
			childRel = f.rel + "/" + e.Name()
		}
		if f.adapter.authorize(f.ctx, OpRead, childRel) == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Mount builds the http.Handler for one share's WebDAV mount point,
// authenticating via checker and attaching the resolved principal/client
// IP to the request context before delegating to the webdav.Handler.
//
// When propertyManager is false, PROPPATCH requests are rejected outright
// instead of being handed to webdav.Handler's default dead-property
// store, so the knob actually gates behavior rather than sitting unread.
func Mount(shareName, root, prefix string, checker *auth.Checker, evalFn EvaluatorFunc, ls webdav.LockSystem, propertyManager bool, m *metrics.Metrics) http.Handler {
	h := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: &adapter{shareName: shareName, root: root, evalFn: evalFn, metrics: m},
		LockSystem: ls,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := checker.RequireAuth(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="chfs"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !propertyManager && r.Method == "PROPPATCH" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		ctx := withPrincipal(r.Context(), user, auth.ClientIP(r))
		if m != nil {
			m.IncWebDAVRequests()
		}
		rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r.WithContext(ctx))
		if m != nil && rec.status >= 400 {
			m.IncWebDAVErrors()
		}
	})
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
