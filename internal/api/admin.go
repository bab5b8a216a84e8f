package api

import (
	"encoding/json"
	"net/http"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/middleware"
	"github.com/chfs/chfs/internal/quota"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// handleRegister implements POST /api/register: disabled unless the UI
// registration flag is set, validates username length/password strength/
// confirmation match, then creates a dynamic user with {R,W,D} over every
// configured share.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Current()
	if !snap.UI.Registration.Enabled {
		middleware.RespondError(w, chfserr.New(chfserr.KindForbidden, "registration is disabled"))
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}
	if len(req.Username) < 3 {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "username must be at least 3 characters"))
		return
	}
	if len(req.Password) < 6 {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "password must be at least 6 characters"))
		return
	}
	if req.Password != req.Confirm {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "passwords do not match"))
		return
	}

	if err := s.cfg.Users().Register(req.Username, req.Password, snap.ShareNames()); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindConflict, err.Error()))
		return
	}
	_ = s.cfg.Reload()
	middleware.RespondJSON(w, map[string]string{"username": req.Username})
}

type adminStatusResponse struct {
	Metrics any                       `json:"metrics"`
	Shares  map[string]quota.Describe `json:"shares"`
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireLocalAdmin(w, r); !ok {
		return
	}
	snap := s.cfg.Current()
	shares := make(map[string]quota.Describe, len(snap.Shares))
	for _, sh := range snap.Shares {
		used, err := s.quota.GetUsage(sh.Name, sh.Path, false)
		if err != nil {
			continue
		}
		shares[sh.Name] = quota.DescribeUsage(sh.QuotaBytes, used)
	}

	resp := adminStatusResponse{Shares: shares}
	if s.metrics != nil {
		resp.Metrics = s.metrics.Snapshot()
	}
	middleware.RespondJSON(w, resp)
}

type quotaRequest struct {
	Quota      *int64 `json:"quota"`
	QuotaBytes *int64 `json:"quotaBytes"`
}

func (s *Server) handleAdminSetQuota(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireLocalAdmin(w, r); !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var req quotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}
	var bytes int64
	switch {
	case req.QuotaBytes != nil:
		bytes = *req.QuotaBytes
	case req.Quota != nil:
		bytes = *req.Quota
	}

	if err := s.cfg.Shares().SetQuota(name, bytes); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindInternal, err.Error()))
		return
	}
	s.quota.Invalidate(name)
	_ = s.cfg.Reload()
	middleware.RespondJSON(w, nil)
}

type customURLsRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleAdminSetCustomURLs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireLocalAdmin(w, r); !ok {
		return
	}
	var req customURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}
	if err := s.cfg.Server().SetCustomURLs(req.URLs); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindInternal, err.Error()))
		return
	}
	_ = s.cfg.Reload()
	middleware.RespondJSON(w, s.cfg.Server().CustomURLs())
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireLocalAdmin(w, r); !ok {
		return
	}
	snap := s.cfg.Current()
	names := make([]string, 0, len(snap.Users))
	for _, u := range snap.Users {
		if u.Dynamic {
			names = append(names, u.Name)
		}
	}
	middleware.RespondJSON(w, names)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireLocalAdmin(w, r)
	if !ok {
		return
	}
	username := chi.URLParam(r, "username")
	if username == admin {
		middleware.RespondError(w, chfserr.New(chfserr.KindForbidden, "cannot remove yourself"))
		return
	}
	if err := s.cfg.Users().Remove(username); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindNotFound, err.Error()))
		return
	}
	_ = s.cfg.Reload()
	middleware.RespondJSON(w, nil)
}
