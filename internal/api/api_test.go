package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chfs/chfs/internal/auth"
	"github.com/chfs/chfs/internal/config"
	"github.com/chfs/chfs/internal/directtransfer"
	"github.com/chfs/chfs/internal/model"
	"github.com/chfs/chfs/internal/quota"
	"github.com/chfs/chfs/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *config.Store) {
	t.Helper()
	root := t.TempDir()
	shareDir := filepath.Join(root, "pub")
	require.NoError(t, os.MkdirAll(shareDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shareDir, "hello.txt"), []byte("hello world"), 0o644))

	yamlBody := `
server:
  addr: 0.0.0.0
  port: 9090
shares:
  - name: pub
    path: ` + shareDir + `
users:
  - name: alice
    pass: secret
rules:
  - who: alice
    allow: ["R", "W", "D"]
    roots: ["pub"]
    paths: ["/"]
`
	cfgPath := filepath.Join(root, "chfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlBody), 0o644))
	cfg, err := config.New(cfgPath, filepath.Join(root, "data"), nil)
	require.NoError(t, err)

	checker := auth.New(cfg)
	q := quota.NewManager()
	gw := storage.NewGateway(cfg.Current().Shares, q)
	dt, err := directtransfer.New(filepath.Join(root, "data", "direct_transfers"))
	require.NoError(t, err)

	return NewServer(cfg, checker, gw, q, dt, nil), cfg
}

func withBasicAuth(r *http.Request, user, pass string) {
	r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
}

func TestHandleSession_RequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSession_ReturnsAccessibleRoots(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	withBasicAuth(req, "alice", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, model.CodeSuccess, resp.Code)
	require.Contains(t, rec.Body.String(), `"accessibleRoots":["pub"]`)
}

func TestHandleList_ListsShareContents(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/list?root=pub&path=", nil)
	withBasicAuth(req, "alice", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "hello.txt")
}

func TestHandleUpload_WritesFile(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("root", "pub"))
	require.NoError(t, mw.WriteField("path", ""))
	part, err := mw.CreateFormFile("file", "new.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("uploaded"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	withBasicAuth(req, "alice", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDownload_ReturnsPartialContent(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/download?root=pub&path=hello.txt", nil)
	req.Header.Set("Range", "bytes=0-4")
	withBasicAuth(req, "alice", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestHandleAdminStatus_RequiresLocalClient(t *testing.T) {
	s, _ := newTestServer(t)
	r := chi.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	withBasicAuth(req, "alice", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
