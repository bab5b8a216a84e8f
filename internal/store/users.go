package store

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"

	"github.com/chfs/chfs/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type userRuleJSON struct {
	Allow   []string `json:"allow"`
	Roots   []string `json:"roots"`
	Paths   []string `json:"paths"`
	IPAllow []string `json:"ip_allow"`
	IPDeny  []string `json:"ip_deny"`
}

type userEntryJSON struct {
	Name     string         `json:"name"`
	PassHash string         `json:"pass_hash"`
	IsBcrypt bool           `json:"is_bcrypt"`
	Rules    []userRuleJSON `json:"rules"`
}

type usersFileJSON struct {
	Users []userEntryJSON `json:"users"`
}

// UserStore is the append-only dynamic-user store backed by
// data/users.json, per §4.6: each registered user carries a default rule
// granting {R,W,D} over every configured share under "/".
type UserStore struct {
	mu   sync.RWMutex
	path string
	data usersFileJSON
}

// NewUserStore loads path if it exists, or starts empty.
func NewUserStore(path string) (*UserStore, error) {
	s := &UserStore{path: path}
	if err := readJSON(path, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// Users returns the current dynamic users and their embedded rules as
// model types, for merging into the Config Store's snapshot.
func (s *UserStore) Users() ([]model.User, []model.Rule) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.data.Users))
	rules := make([]model.Rule, 0, len(s.data.Users))
	for _, e := range s.data.Users {
		users = append(users, model.User{Name: e.Name, PassHash: e.PassHash, IsBcrypt: e.IsBcrypt, Dynamic: true})
		for _, r := range e.Rules {
			rules = append(rules, model.Rule{
				Who:     e.Name,
				Allow:   toPermissions(r.Allow),
				Roots:   r.Roots,
				Paths:   r.Paths,
				IPAllow: r.IPAllow,
				IPDeny:  r.IPDeny,
			})
		}
	}
	return users, rules
}

func toPermissions(vals []string) []model.Permission {
	if len(vals) == 0 {
		return []model.Permission{model.PermRead}
	}
	out := make([]model.Permission, 0, len(vals))
	for _, v := range vals {
		switch model.Permission(v) {
		case model.PermRead, model.PermWrite, model.PermDelete:
			out = append(out, model.Permission(v))
		}
	}
	if len(out) == 0 {
		return []model.Permission{model.PermRead}
	}
	return out
}

// Register adds a new dynamic user with a bcrypt hash of password and the
// default rule of §4.6. It is case-insensitively unique on username.
func (s *UserStore) Register(username, password string, shareNames []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.add(username, string(hash), true, shareNames)
}

// AddPrehashed adds a dynamic user whose password hash was already
// computed (used by the CLI's "user add" command).
func (s *UserStore) AddPrehashed(username, passHash string, isBcrypt bool, shareNames []string) error {
	return s.add(username, passHash, isBcrypt, shareNames)
}

func (s *UserStore) add(username, passHash string, isBcrypt bool, shareNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(username)
	for _, e := range s.data.Users {
		if strings.ToLower(e.Name) == lower {
			return fmt.Errorf("user %q already exists", username)
		}
	}

	roots := shareNames
	if roots == nil {
		roots = []string{"*"}
	}

	s.data.Users = append(s.data.Users, userEntryJSON{
		Name:     username,
		PassHash: passHash,
		IsBcrypt: isBcrypt,
		Rules: []userRuleJSON{{
			Allow:   []string{"R", "W", "D"},
			Roots:   roots,
			Paths:   []string{"/"},
			IPAllow: []string{"*"},
			IPDeny:  []string{},
		}},
	})

	return writeJSONAtomic(s.path, s.data)
}

// Remove deletes a dynamic user and its rule entries by name.
func (s *UserStore) Remove(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data.Users[:0]
	found := false
	for _, e := range s.data.Users {
		if e.Name == username {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("user %q not found", username)
	}
	s.data.Users = kept
	return writeJSONAtomic(s.path, s.data)
}

// Authenticate verifies a username/password pair against this store only
// (the Config Store merges static and dynamic users before calling Auth).
func (s *UserStore) Authenticate(username, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data.Users {
		if e.Name != username {
			continue
		}
		if e.IsBcrypt {
			return bcrypt.CompareHashAndPassword([]byte(e.PassHash), []byte(password)) == nil
		}
		return subtle.ConstantTimeCompare([]byte(e.PassHash), []byte(password)) == 1
	}
	return false
}
