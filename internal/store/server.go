package store

import (
	"net/url"
	"sync"
)

type serverFileJSON struct {
	CustomURLs []string `json:"custom_urls"`
}

// ServerStore is the custom-URL list backed by data/server.json (§6),
// surfaced read-only at /api/session per SPEC_FULL's supplemented feature.
type ServerStore struct {
	mu   sync.RWMutex
	path string
	data serverFileJSON
}

// NewServerStore loads path if it exists, or starts empty.
func NewServerStore(path string) (*ServerStore, error) {
	s := &ServerStore{path: path}
	if err := readJSON(path, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// CustomURLs returns the current advertised URL list.
func (s *ServerStore) CustomURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.data.CustomURLs))
	copy(out, s.data.CustomURLs)
	return out
}

// SetCustomURLs validates (scheme in {http,https}) and dedups urls, then
// persists them.
func (s *ServerStore) SetCustomURLs(urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	deduped := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		deduped = append(deduped, raw)
	}

	s.data.CustomURLs = deduped
	return writeJSONAtomic(s.path, s.data)
}
