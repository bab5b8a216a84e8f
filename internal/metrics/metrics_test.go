package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsRequestsAndResponses(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncRequests("GET")
	m.IncRequests("GET")
	m.IncRequests("POST")
	m.IncActive()
	m.RecordResponse(200, 10*time.Millisecond)
	m.RecordResponse(404, 5*time.Millisecond)
	m.DecActive()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Requests.Total)
	assert.Equal(t, int64(2), snap.Requests.ByMethod["GET"])
	assert.Equal(t, int64(1), snap.Requests.ByMethod["POST"])
	assert.Equal(t, int64(1), snap.Requests.ByStatus["2xx"])
	assert.Equal(t, int64(1), snap.Requests.ByStatus["4xx"])
	assert.Equal(t, int64(0), snap.Requests.Active)
	assert.InDelta(t, 7.5, snap.Requests.AvgRespMs, 0.5)
}

func TestMetrics_TransferAndErrorCounters(t *testing.T) {
	m := New(nil)
	m.AddUploadBytes(100)
	m.AddDownloadBytes(200)
	m.IncErrors()
	m.IncAuthFailures()
	m.IncRateLimitHits()

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap.Transfer.UploadBytes)
	assert.Equal(t, int64(200), snap.Transfer.DownloadBytes)
	assert.Equal(t, int64(1), snap.Errors.Total)
	assert.Equal(t, int64(1), snap.Errors.AuthFailures)
	assert.Equal(t, int64(1), snap.Errors.RateLimitHits)
}

func TestMetrics_WebDAVCounters(t *testing.T) {
	m := New(nil)
	m.IncWebDAVRequests()
	m.IncWebDAVErrors()

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.WebDAV.Requests)
	assert.Equal(t, int64(1), snap.WebDAV.Errors)
}
