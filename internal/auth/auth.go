// Package auth implements §4.7: HTTP Basic auth parsing, password
// verification (bcrypt or constant-time plaintext), principal lookup, and
// the local-admin check used by every /api/admin/* route.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Checker authenticates requests against a config snapshot.
type Checker struct {
	cfg *config.Store
}

// New builds a Checker backed by cfg.
func New(cfg *config.Store) *Checker {
	return &Checker{cfg: cfg}
}

// ParseBasicAuth decodes an "Authorization: Basic ..." header into
// (username, password, ok).
func ParseBasicAuth(header string) (string, string, bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Authenticate verifies username/password against the current snapshot's
// static and dynamic users, returning the principal name on success.
func (c *Checker) Authenticate(username, password string) (string, bool) {
	snap := c.cfg.Current()
	if u, ok := snap.UserByName(username); ok {
		if verify(u.PassHash, u.IsBcrypt, password) {
			return username, true
		}
		return "", false
	}
	// Dynamic users are merged into the snapshot by the Config Store, but
	// the user store also exposes its own Authenticate for the narrow
	// window right after registration and before the next reload.
	if c.cfg.Users().Authenticate(username, password) {
		return username, true
	}
	return "", false
}

func verify(hash string, isBcrypt bool, password string) bool {
	if isBcrypt {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(password)) == 1
}

// FromRequest extracts and verifies the principal from r's Authorization
// header, returning ("", false) if absent or invalid.
func (c *Checker) FromRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	user, pass, ok := ParseBasicAuth(header)
	if !ok {
		return "", false
	}
	return c.Authenticate(user, pass)
}

// RequireAuth extracts the principal or returns an AUTH_REQUIRED error,
// the handler should also set WWW-Authenticate per §7.
func (c *Checker) RequireAuth(r *http.Request) (string, error) {
	user, ok := c.FromRequest(r)
	if !ok {
		return "", chfserr.New(chfserr.KindAuthRequired, "authentication required")
	}
	return user, nil
}

// RequireLocalAdmin additionally checks that the resolved client address
// is loopback, per §4.7; used by every /api/admin/* route.
func RequireLocalAdmin(clientIP string) error {
	ip := net.ParseIP(clientIP)
	if ip == nil || !ip.IsLoopback() {
		return chfserr.New(chfserr.KindForbidden, "admin routes require a local client")
	}
	return nil
}

// ClientIP resolves the request's client address from trusted proxy
// headers in the order specified by §6: X-Forwarded-For (first token),
// X-Real-IP, CF-Connecting-IP, else the transport remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
