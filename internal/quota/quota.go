// Package quota implements the Quota Manager of §4.5: cached per-share
// usage accounting, serialized by a per-share lock so only one walker runs
// at a time, with callers beyond the first simply waiting on the result.
//
// Ported from app/quota.py's ShareQuotaManager, using the directory-walk
// and disk-usage helpers in dirwalk.go and disk_usage_linux.go.
package quota

import (
	"fmt"
	"sync"
	"time"
)

// ExceededError reports that a projected write would exceed a share's quota.
type ExceededError struct {
	Share string
	Limit int64
	Used  int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: share %q would exceed limit (used=%d limit=%d)", e.Share, e.Used, e.Limit)
}

type entry struct {
	mu          sync.Mutex
	cachedUsage int64
	lastWalk    time.Time
	hasCache    bool
}

// Manager tracks cached usage per share, keyed by share name.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates an empty quota manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

func (m *Manager) entryFor(share string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[share]
	if !ok {
		e = &entry{}
		m.entries[share] = e
	}
	return e
}

// GetUsage returns the cached usage for share, walking root if force is set
// or there is no cache yet. The per-share lock ensures only one walk runs
// concurrently; other callers block and receive the same result.
func (m *Manager) GetUsage(share, root string, force bool) (int64, error) {
	e := m.entryFor(share)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !force && e.hasCache {
		return e.cachedUsage, nil
	}

	usage, err := walkDirUsage(root)
	if err != nil {
		return 0, err
	}
	e.cachedUsage = usage
	e.lastWalk = time.Now()
	e.hasCache = true
	return usage, nil
}

// Invalidate drops the cached entry for share, forcing the next GetUsage to
// re-walk. Used after rename/delete, per §4.5 ("usage is invalidated, not
// recomputed inline").
func (m *Manager) Invalidate(share string) {
	e := m.entryFor(share)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasCache = false
	e.cachedUsage = 0
}

// AddDelta adjusts the cached usage by delta (positive for writes, negative
// for deletes) without a re-walk, used right after a streamed upload
// completes under the same share lock that guarded the write.
func (m *Manager) AddDelta(share string, delta int64) {
	e := m.entryFor(share)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasCache {
		e.cachedUsage += delta
		if e.cachedUsage < 0 {
			e.cachedUsage = 0
		}
	}
}

// EnsureWithin raises ExceededError if limit is set (> 0) and projected
// usage would exceed it.
func (m *Manager) EnsureWithin(share string, limit, projected int64) error {
	if limit <= 0 {
		return nil
	}
	if projected > limit {
		return &ExceededError{Share: share, Limit: limit, Used: projected}
	}
	return nil
}

// Describe builds the UI-facing quota status payload of §4.5.
type Describe struct {
	Limit         int64   `json:"limit"`
	LimitDisplay  string  `json:"limitDisplay"`
	Used          int64   `json:"used"`
	UsedDisplay   string  `json:"usedDisplay"`
	Remaining     int64   `json:"remaining"`
	RemainDisplay string  `json:"remainingDisplay"`
	Percent       float64 `json:"percentUsed"`
	Over          bool    `json:"over"`
}

// DescribeUsage computes the status payload for a share given its limit (0 means
// unlimited) and current usage. Grounded on quota.py's describe_quota.
func DescribeUsage(limit, used int64) Describe {
	if limit <= 0 {
		return Describe{
			Limit: 0, LimitDisplay: "unlimited",
			Used: used, UsedDisplay: FormatSize(used),
			Remaining: -1, RemainDisplay: "unlimited",
			Percent: 0, Over: false,
		}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	percent := float64(used) / float64(limit) * 100
	return Describe{
		Limit: limit, LimitDisplay: FormatSize(limit),
		Used: used, UsedDisplay: FormatSize(used),
		Remaining: remaining, RemainDisplay: FormatSize(remaining),
		Percent: percent, Over: used > limit,
	}
}

// FormatSize renders a byte count as a human-readable string (B/KB/MB/GB/TB),
// ported from utils.py's format_file_size.
func FormatSize(n int64) string {
	if n == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(n)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", f, units[i])
}

// DiskFree returns the available bytes on the filesystem containing path.
func DiskFree(path string) (uint64, error) {
	return diskFree(path)
}
