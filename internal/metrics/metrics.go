// Package metrics implements the Metrics component of §4.12/§2 row 12:
// lock-guarded request/upload/download counters, mirrored onto
// prometheus/client_golang gauges so GET /metrics has a real scrape
// surface (§4.8's IP-filter whitelist explicitly carves out that path).
//
// The hand-rolled Metrics struct remains the source of truth for
// GET /api/admin/status; the Prometheus collectors are a side mirror, not
// a replacement, per SPEC_FULL.md's AMBIENT STACK section.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the JSON-serializable view returned by /api/admin/status.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Requests      struct {
		Total     int64            `json:"total"`
		Active    int64            `json:"active"`
		ByMethod  map[string]int64 `json:"byMethod"`
		ByStatus  map[string]int64 `json:"byStatus"`
		AvgRespMs float64          `json:"avgResponseTimeMs"`
	} `json:"requests"`
	Transfer struct {
		UploadBytes   int64 `json:"uploadBytes"`
		DownloadBytes int64 `json:"downloadBytes"`
	} `json:"transfer"`
	Errors struct {
		Total         int64 `json:"total"`
		AuthFailures  int64 `json:"authFailures"`
		RateLimitHits int64 `json:"rateLimitHits"`
	} `json:"errors"`
	WebDAV struct {
		Requests int64 `json:"requests"`
		Errors   int64 `json:"errors"`
	} `json:"webdav"`
}

// Metrics is the lock-guarded counter set, ported from app/metrics.py's
// MetricsManager.
type Metrics struct {
	mu sync.Mutex

	startTime time.Time

	totalRequests      int64
	activeRequests     int64
	requestsByMethod   map[string]int64
	requestsByStatus   map[string]int64
	totalUploadBytes   int64
	totalDownloadBytes int64
	totalErrors        int64
	authFailures       int64
	rateLimitHits      int64
	totalResponseTime  float64 // milliseconds, running sum
	responseCount      int64
	webdavRequests     int64
	webdavErrors       int64

	prom *promCollectors
}

// New creates an empty Metrics, optionally registering Prometheus
// collectors against reg (pass nil to skip Prometheus entirely, e.g. in
// tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		startTime:        time.Now(),
		requestsByMethod: map[string]int64{},
		requestsByStatus: map[string]int64{},
	}
	if reg != nil {
		m.prom = newPromCollectors(reg)
	}
	return m
}

// IncRequests records the start of a request with the given method.
func (m *Metrics) IncRequests(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
	m.requestsByMethod[method]++
	if m.prom != nil {
		m.prom.requestsTotal.WithLabelValues(method).Inc()
	}
}

// IncActive / DecActive track in-flight request count.
func (m *Metrics) IncActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeRequests++
	if m.prom != nil {
		m.prom.activeRequests.Set(float64(m.activeRequests))
	}
}

func (m *Metrics) DecActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeRequests--
	if m.prom != nil {
		m.prom.activeRequests.Set(float64(m.activeRequests))
	}
}

// RecordResponse records a completed request's status and latency.
func (m *Metrics) RecordResponse(status int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statusBucket(status)
	m.requestsByStatus[key]++
	ms := float64(elapsed.Microseconds()) / 1000.0
	m.totalResponseTime += ms
	m.responseCount++
	if m.prom != nil {
		m.prom.responseStatus.WithLabelValues(key).Inc()
		m.prom.responseTime.Observe(ms / 1000.0)
	}
}

// AddUploadBytes / AddDownloadBytes tally transferred volume.
func (m *Metrics) AddUploadBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalUploadBytes += n
	if m.prom != nil {
		m.prom.uploadBytes.Add(float64(n))
	}
}

func (m *Metrics) AddDownloadBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalDownloadBytes += n
	if m.prom != nil {
		m.prom.downloadBytes.Add(float64(n))
	}
}

// IncErrors / IncAuthFailures / IncRateLimitHits track taxonomy-level
// error counters.
func (m *Metrics) IncErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalErrors++
	if m.prom != nil {
		m.prom.errorsTotal.Inc()
	}
}

func (m *Metrics) IncAuthFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures++
	if m.prom != nil {
		m.prom.authFailures.Inc()
	}
}

func (m *Metrics) IncRateLimitHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitHits++
	if m.prom != nil {
		m.prom.rateLimitHits.Inc()
	}
}

// IncWebDAVRequests / IncWebDAVErrors track the WebDAV adapter separately
// from the JSON API.
func (m *Metrics) IncWebDAVRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webdavRequests++
}

func (m *Metrics) IncWebDAVErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webdavErrors++
}

// Snapshot returns a consistent copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	s.Requests.Total = m.totalRequests
	s.Requests.Active = m.activeRequests
	s.Requests.ByMethod = copyMap(m.requestsByMethod)
	s.Requests.ByStatus = copyMap(m.requestsByStatus)
	if m.responseCount > 0 {
		s.Requests.AvgRespMs = m.totalResponseTime / float64(m.responseCount)
	}
	s.Transfer.UploadBytes = m.totalUploadBytes
	s.Transfer.DownloadBytes = m.totalDownloadBytes
	s.Errors.Total = m.totalErrors
	s.Errors.AuthFailures = m.authFailures
	s.Errors.RateLimitHits = m.rateLimitHits
	s.WebDAV.Requests = m.webdavRequests
	s.WebDAV.Errors = m.webdavErrors
	return s
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
