package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chfs/chfs/internal/model"
	"github.com/chfs/chfs/internal/store"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	yaml "go.yaml.in/yaml/v3"
)

// ReloadFunc is invoked with (old, new) snapshots after a successful
// reload, per §4.6 ("subscribers receive (old, new) callbacks").
type ReloadFunc func(old, new *Snapshot)

// Store owns the current configuration snapshot and the three dynamic
// JSON stores layered on top of it. It is the single owner the cyclic
// config↔store relationship in §9's DESIGN NOTES calls for: writers go
// through Store's methods, Store never reaches back into them during a
// plain read.
type Store struct {
	path string

	current atomic.Pointer[Snapshot]

	users  *store.UserStore
	shares *store.ShareStore
	server *store.ServerStore

	mu        sync.Mutex
	callbacks []ReloadFunc

	watcher     *fsnotify.Watcher
	debounce    time.Duration
	watcherDone chan struct{}
	log         *logrus.Entry
}

// New builds a Store rooted at configPath, with the three dynamic JSON
// stores under dataDir. It performs the initial load before returning.
func New(configPath, dataDir string, log *logrus.Entry) (*Store, error) {
	users, err := store.NewUserStore(filepath.Join(dataDir, "users.json"))
	if err != nil {
		return nil, fmt.Errorf("config: load user store: %w", err)
	}
	shares, err := store.NewShareStore(filepath.Join(dataDir, "shares.json"))
	if err != nil {
		return nil, fmt.Errorf("config: load share store: %w", err)
	}
	server, err := store.NewServerStore(filepath.Join(dataDir, "server.json"))
	if err != nil {
		return nil, fmt.Errorf("config: load server store: %w", err)
	}

	s := &Store{
		path:   configPath,
		users:  users,
		shares: shares,
		server: server,
		log:    log,
	}

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)

	return s, nil
}

// Current returns the current read-only snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Users exposes the dynamic-user store for the registration endpoint and
// the admin user-management endpoints.
func (s *Store) Users() *store.UserStore { return s.users }

// Shares exposes the share-override store for the admin quota endpoint.
func (s *Store) Shares() *store.ShareStore { return s.shares }

// Server exposes the custom-URL store for the admin endpoint.
func (s *Store) Server() *store.ServerStore { return s.server }

// AddReloadCallback registers a callback invoked after every successful
// reload.
func (s *Store) AddReloadCallback(f ReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, f)
}

// load parses the YAML document (falling back to defaults if the file is
// missing) and merges the dynamic stores on top, per §4.6 steps 1-4.
func (s *Store) load() (*Snapshot, error) {
	doc := defaultDocument()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", s.path, err)
		}
	} else if len(data) > 0 {
		parsed := defaultDocument()
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", s.path, err)
		}
		doc = parsed
	}

	shares := make([]model.Share, 0, len(doc.Shares))
	overrides := s.shares.Overrides()
	for _, sy := range doc.Shares {
		quota := sy.QuotaBytes
		if o, ok := overrides[sy.Name]; ok {
			quota = o
		}
		shares = append(shares, model.NewShare(sy.Name, sy.Path, quota))
	}

	shareNames := make([]string, len(shares))
	for i, sh := range shares {
		shareNames[i] = sh.Name
	}

	users := make([]model.User, 0, len(doc.Users))
	rules := make([]model.Rule, 0, len(doc.Rules))
	for _, uy := range doc.Users {
		isBcrypt := uy.PassBcrypt != ""
		hash := uy.PassBcrypt
		if hash == "" {
			hash = uy.Pass
		}
		users = append(users, model.User{Name: uy.Name, PassHash: hash, IsBcrypt: isBcrypt})
	}
	for _, ry := range doc.Rules {
		rules = append(rules, model.Rule{
			Who:     ry.Who,
			Allow:   toPermissions(ry.Allow),
			Roots:   ry.Roots,
			Paths:   ry.Paths,
			IPAllow: defaultWildcard(ry.IPAllow),
			IPDeny:  ry.IPDeny,
		})
	}

	dynUsers, dynRules := s.users.Users()
	users = append(users, dynUsers...)
	rules = append(rules, dynRules...)

	return &Snapshot{
		Server:     doc.Server,
		Shares:     shares,
		Users:      users,
		Rules:      rules,
		Logging:    doc.Logging,
		RateLimit:  doc.RateLimit,
		IPFilter:   doc.IPFilter,
		UI:         doc.UI,
		Dav:        doc.Dav,
		HotReload:  doc.HotReload,
		CustomURLs: s.server.CustomURLs(),
	}, nil
}

// Reload re-parses the config and dynamic stores and atomically swaps in
// the new snapshot, notifying callbacks. If parsing fails, the previous
// snapshot is retained and the error is returned (and logged by the
// caller).
func (s *Store) Reload() error {
	old := s.current.Load()
	fresh, err := s.load()
	if err != nil {
		return err
	}
	s.current.Store(fresh)

	s.mu.Lock()
	callbacks := append([]ReloadFunc(nil), s.callbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, fresh)
	}
	return nil
}

func toPermissions(vals []string) []model.Permission {
	out := make([]model.Permission, 0, len(vals))
	for _, v := range vals {
		switch model.Permission(v) {
		case model.PermRead, model.PermWrite, model.PermDelete:
			out = append(out, model.Permission(v))
		}
	}
	return out
}

func defaultWildcard(vals []string) []string {
	if len(vals) == 0 {
		return []string{"*"}
	}
	return vals
}
