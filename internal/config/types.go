// Package config implements the Config Store of §4.6: it parses the
// declarative chfs.yaml, merges the dynamic-user and share-override
// stores on top, and publishes immutable snapshots that the rest of the
// server reads without ever mutating.
//
// This inverts the cyclic config↔store relationship flagged in §9's
// DESIGN NOTES: ConfigStore is the single owner of current state, and the
// dynamic stores are called into by it, never the reverse.
package config

import "github.com/chfs/chfs/internal/model"

// TLSConfig describes optional TLS termination settings, consumed by the
// HTTP runtime (§1 lists TLS termination as an external collaborator).
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// ServerConfig is the bind configuration.
type ServerConfig struct {
	Addr string    `yaml:"addr"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// LoggingConfig controls structured-log format, verbosity and an optional
// file sink. MaxSizeMB and BackupCount are parsed but not read by
// internal/logging; the log file is not rotated.
type LoggingConfig struct {
	JSON        bool   `yaml:"json"`
	File        string `yaml:"file"`
	Level       string `yaml:"level"`
	MaxSizeMB   int    `yaml:"maxSizeMb"`
	BackupCount int    `yaml:"backupCount"`
}

// RateLimitConfig configures the shared token bucket and concurrency cap.
type RateLimitConfig struct {
	RPS           float64 `yaml:"rps"`
	Burst         float64 `yaml:"burst"`
	MaxConcurrent int     `yaml:"maxConcurrent"`
}

// IPFilterConfig is the server-wide (not rule-local) IP allow/deny list,
// consulted by the middleware pipeline before routing (§4.8).
type IPFilterConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// RegistrationConfig controls whether POST /api/register is enabled; the
// spec leaves the default to the operator (§9 Open Question), resolved
// here as false (see SPEC_FULL.md's Open Question Decisions).
type RegistrationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UIConfig carries cosmetic/browser-facing settings that do not affect
// core enforcement.
type UIConfig struct {
	Brand         string             `yaml:"brand"`
	Title         string             `yaml:"title"`
	MaxUploadSize int64              `yaml:"maxUploadSize"`
	Language      string             `yaml:"language"`
	Registration  RegistrationConfig `yaml:"registration"`
}

// DavConfig controls the WebDAV adapter mount.
type DavConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MountPath       string `yaml:"mountPath"`
	LockManager     bool   `yaml:"lockManager"`
	PropertyManager bool   `yaml:"propertyManager"`
}

// HotReloadConfig controls the config file watcher.
type HotReloadConfig struct {
	Enabled     bool `yaml:"enabled"`
	WatchConfig bool `yaml:"watchConfig"`
	DebounceMs  int  `yaml:"debounceMs"`
}

// shareYAML / userYAML / ruleYAML mirror chfs.yaml's document shape; they
// are translated into model.Share / model.User / model.Rule once parsed.
type shareYAML struct {
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`
	QuotaBytes int64  `yaml:"quotaBytes"`
}

type userYAML struct {
	Name       string `yaml:"name"`
	Pass       string `yaml:"pass"`
	PassBcrypt string `yaml:"passBcrypt"`
}

type ruleYAML struct {
	Who     string   `yaml:"who"`
	Allow   []string `yaml:"allow"`
	Roots   []string `yaml:"roots"`
	Paths   []string `yaml:"paths"`
	IPAllow []string `yaml:"ipAllow"`
	IPDeny  []string `yaml:"ipDeny"`
}

// documentYAML is the literal shape of chfs.yaml.
type documentYAML struct {
	Server    ServerConfig    `yaml:"server"`
	Shares    []shareYAML     `yaml:"shares"`
	Users     []userYAML      `yaml:"users"`
	Rules     []ruleYAML      `yaml:"rules"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	IPFilter  IPFilterConfig  `yaml:"ipFilter"`
	UI        UIConfig        `yaml:"ui"`
	Dav       DavConfig       `yaml:"dav"`
	HotReload HotReloadConfig `yaml:"hotReload"`
}

func defaultDocument() documentYAML {
	return documentYAML{
		Server:    ServerConfig{Addr: "0.0.0.0", Port: 8080},
		Logging:   LoggingConfig{JSON: true, Level: "info", MaxSizeMB: 100, BackupCount: 5},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 100, MaxConcurrent: 32},
		UI: UIConfig{
			Brand: "chfs", MaxUploadSize: 100 * 1024 * 1024, Language: "en",
			Registration: RegistrationConfig{Enabled: false},
		},
		Dav:       DavConfig{Enabled: true, MountPath: "/webdav", LockManager: true, PropertyManager: true},
		HotReload: HotReloadConfig{Enabled: true, WatchConfig: true, DebounceMs: 1000},
	}
}

// Snapshot is the immutable, fully merged configuration consumed by every
// other component. A new Snapshot is built on every load/reload and
// published via atomic pointer swap. The only in-place writes are the
// --host/--port/--reload/--debug overrides that server.New applies to the
// initial snapshot before serving starts.
type Snapshot struct {
	Server     ServerConfig
	Shares     []model.Share
	Users      []model.User
	Rules      []model.Rule
	Logging    LoggingConfig
	RateLimit  RateLimitConfig
	IPFilter   IPFilterConfig
	UI         UIConfig
	Dav        DavConfig
	HotReload  HotReloadConfig
	CustomURLs []string
}

// ShareNames returns the configured share names, in declaration order.
func (s *Snapshot) ShareNames() []string {
	names := make([]string, len(s.Shares))
	for i, sh := range s.Shares {
		names[i] = sh.Name
	}
	return names
}

// ShareByName looks up a share by name.
func (s *Snapshot) ShareByName(name string) (model.Share, bool) {
	for _, sh := range s.Shares {
		if sh.Name == name {
			return sh, true
		}
	}
	return model.Share{}, false
}

// UserByName looks up a user by name.
func (s *Snapshot) UserByName(name string) (model.User, bool) {
	for _, u := range s.Users {
		if u.Name == name {
			return u, true
		}
	}
	return model.User{}, false
}
