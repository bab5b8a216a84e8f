package store

import "sync"

type shareOverrideJSON struct {
	QuotaBytes int64 `json:"quota_bytes"`
}

type sharesFileJSON struct {
	Shares map[string]shareOverrideJSON `json:"shares"`
}

// ShareStore is the per-share quota-override store backed by
// data/shares.json.
type ShareStore struct {
	mu   sync.RWMutex
	path string
	data sharesFileJSON
}

// NewShareStore loads path if it exists, or starts empty.
func NewShareStore(path string) (*ShareStore, error) {
	s := &ShareStore{path: path, data: sharesFileJSON{Shares: map[string]shareOverrideJSON{}}}
	if err := readJSON(path, &s.data); err != nil {
		return nil, err
	}
	if s.data.Shares == nil {
		s.data.Shares = map[string]shareOverrideJSON{}
	}
	return s, nil
}

// Overrides returns the current quota_bytes override per share name.
func (s *ShareStore) Overrides() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.data.Shares))
	for name, o := range s.data.Shares {
		out[name] = o.QuotaBytes
	}
	return out
}

// SetQuota sets (or, if quotaBytes <= 0, clears) the override for share.
func (s *ShareStore) SetQuota(share string, quotaBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quotaBytes <= 0 {
		delete(s.data.Shares, share)
	} else {
		s.data.Shares[share] = shareOverrideJSON{QuotaBytes: quotaBytes}
	}
	return writeJSONAtomic(s.path, s.data)
}
