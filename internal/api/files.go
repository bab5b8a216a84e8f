package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/middleware"
	"github.com/chfs/chfs/internal/model"
	"github.com/chfs/chfs/internal/rules"
	"github.com/chfs/chfs/internal/storage"
)

type sessionResponse struct {
	User            string   `json:"user"`
	AccessibleRoots []string `json:"accessibleRoots"`
	CustomURLs      []string `json:"customUrls"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	roots := s.evaluator().AccessibleRoots(user, auth.ClientIP(r))
	middleware.RespondJSON(w, sessionResponse{User: user, AccessibleRoots: roots, CustomURLs: s.cfg.Current().CustomURLs})
}

// authorize checks the Rule Evaluator for (user, action, root, path, ip)
// and, on denial, writes the matching error envelope.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, user, action, root, path string) bool {
	op := rules.OpForAction(action)
	ok, reason := s.evaluator().Evaluate(user, op, root, path, auth.ClientIP(r))
	if ok {
		return true
	}
	middleware.RespondError(w, chfserr.New(chfserr.KindForbidden, reason))
	return false
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	root := r.URL.Query().Get("root")
	rel := r.URL.Query().Get("path")
	if !s.authorize(w, r, user, "list", root, rel) {
		return
	}
	entries, err := s.gateway.List(root, rel)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}
	middleware.RespondJSON(w, entries)
}

const defaultMaxUploadSize = 100 * 1024 * 1024

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	root := r.FormValue("root")
	rel := r.FormValue("path")
	if !s.authorize(w, r, user, "upload", root, rel) {
		return
	}

	maxSize := s.cfg.Current().UI.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "missing file part"))
		return
	}
	defer file.Close()

	written, err := s.gateway.Upload(root, rel, header.Filename, file, maxSize, header.Size)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.AddUploadBytes(written)
	}
	middleware.RespondJSON(w, model.FileInfo{Name: header.Filename, Size: written})
}

type mkdirRequest struct {
	Root string `json:"root"`
	Path string `json:"path"`
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}
	if !s.authorize(w, r, user, "mkdir", req.Root, req.Path) {
		return
	}
	if err := s.gateway.Mkdir(req.Root, req.Path); err != nil {
		middleware.RespondError(w, err)
		return
	}
	middleware.RespondJSON(w, nil)
}

type renameRequest struct {
	Root    string `json:"root"`
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}
	if !s.authorize(w, r, user, "rename", req.Root, req.Path) {
		return
	}
	if err := s.gateway.Rename(req.Root, req.Path, req.NewName); err != nil {
		middleware.RespondError(w, err)
		return
	}
	middleware.RespondJSON(w, nil)
}

type deleteRequest struct {
	Root  string   `json:"root"`
	Paths []string `json:"paths"`
}

type deleteResult struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid JSON body"))
		return
	}

	result := deleteResult{Deleted: []string{}, Failed: map[string]string{}}
	ip := auth.ClientIP(r)
	for _, p := range req.Paths {
		ok, reason := s.evaluator().Evaluate(user, rules.OpForAction("delete"), req.Root, p, ip)
		if !ok {
			result.Failed[p] = reason
			continue
		}
		if err := s.gateway.Delete(req.Root, p); err != nil {
			result.Failed[p] = err.Error()
			continue
		}
		result.Deleted = append(result.Deleted, p)
	}
	middleware.RespondJSON(w, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	root := r.URL.Query().Get("root")
	rel := r.URL.Query().Get("path")
	if !s.authorize(w, r, user, "download", root, rel) {
		return
	}

	rng, err := parseRange(r.Header.Get("Range"))
	if err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "invalid Range header"))
		return
	}

	f, start, end, total, derr := s.gateway.Download(root, rel, rng)
	if derr != nil {
		middleware.RespondError(w, derr)
		return
	}
	defer f.Close()

	if rng != nil && total == 0 {
		w.Header().Set("Content-Range", "bytes */0")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	name := rel
	if idx := strings.LastIndexByte(rel, '/'); idx >= 0 {
		name = rel[idx+1:]
	}
	w.Header().Set("Content-Disposition", storage.ContentDisposition(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")

	length := end - start + 1
	if length < 0 {
		length = 0
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))

	status := http.StatusOK
	if rng != nil && (rng.Start != nil || rng.End != nil || rng.SuffixLength != nil) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	n, _ := io.CopyN(w, f, length)
	if s.metrics != nil {
		s.metrics.AddDownloadBytes(n)
	}
}
