package metrics

import "github.com/prometheus/client_golang/prometheus"

// promCollectors mirrors the hand-rolled counters above onto Prometheus
// metric types, so GET /metrics can be scraped by standard tooling
// without displacing Metrics as the source of truth for the admin-status
// JSON payload.
type promCollectors struct {
	requestsTotal  *prometheus.CounterVec
	activeRequests prometheus.Gauge
	responseStatus *prometheus.CounterVec
	responseTime   prometheus.Histogram
	uploadBytes    prometheus.Counter
	downloadBytes  prometheus.Counter
	errorsTotal    prometheus.Counter
	authFailures   prometheus.Counter
	rateLimitHits  prometheus.Counter
}

func newPromCollectors(reg prometheus.Registerer) *promCollectors {
	p := &promCollectors{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chfs_requests_total",
			Help: "Total HTTP requests handled, by method.",
		}, []string{"method"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chfs_requests_active",
			Help: "Currently in-flight HTTP requests.",
		}),
		responseStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chfs_responses_total",
			Help: "Total HTTP responses, by status class.",
		}, []string{"status_class"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chfs_response_duration_seconds",
			Help:    "Request handling latency.",
			Buckets: prometheus.DefBuckets,
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chfs_upload_bytes_total",
			Help: "Total bytes received via upload endpoints.",
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chfs_download_bytes_total",
			Help: "Total bytes sent via download endpoints.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chfs_errors_total",
			Help: "Total requests that resulted in an error response.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chfs_auth_failures_total",
			Help: "Total failed authentication attempts.",
		}),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chfs_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter or concurrency cap.",
		}),
	}

	reg.MustRegister(
		p.requestsTotal, p.activeRequests, p.responseStatus, p.responseTime,
		p.uploadBytes, p.downloadBytes, p.errorsTotal, p.authFailures, p.rateLimitHits,
	)

	return p
}
