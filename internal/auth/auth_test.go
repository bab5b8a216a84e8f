package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestParseBasicAuth(t *testing.T) {
	user, pass, ok := ParseBasicAuth(basicHeader("alice", "secret"))
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestParseBasicAuth_Malformed(t *testing.T) {
	_, _, ok := ParseBasicAuth("Bearer xyz")
	assert.False(t, ok)
}

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
users:
  - name: alice
    pass: secret
`), 0o644))
	cfg, err := config.New(cfgPath, filepath.Join(dir, "data"), nil)
	require.NoError(t, err)
	return New(cfg)
}

func TestAuthenticate_PlaintextUser(t *testing.T) {
	c := newTestChecker(t)
	_, ok := c.Authenticate("alice", "secret")
	assert.True(t, ok)
	_, ok = c.Authenticate("alice", "wrong")
	assert.False(t, ok)
}

func TestFromRequest(t *testing.T) {
	c := newTestChecker(t)
	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.Header.Set("Authorization", basicHeader("alice", "secret"))

	user, ok := c.FromRequest(r)
	require.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	c := newTestChecker(t)
	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	_, err := c.RequireAuth(r)
	ce, ok := chfserr.As(err)
	require.True(t, ok)
	assert.Equal(t, chfserr.KindAuthRequired, ce.Kind)
}

func TestRequireLocalAdmin(t *testing.T) {
	assert.NoError(t, RequireLocalAdmin("127.0.0.1"))
	assert.Error(t, RequireLocalAdmin("8.8.8.8"))
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	r.RemoteAddr = "9.9.9.9:1234"
	assert.Equal(t, "1.2.3.4", ClientIP(r))
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "9.9.9.9:1234"
	assert.Equal(t, "9.9.9.9", ClientIP(r))
}
