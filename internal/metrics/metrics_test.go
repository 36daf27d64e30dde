package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/chat", 200)
	m.ObserveRequest("/api/chat", 200)
	m.ObserveRequest("/api/chat", 503)
	m.ObserveTokens("TEE/DeepSeek-v3.2", 120, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/chat", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/chat", "503")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.Tokens.WithLabelValues("prompt", "TEE/DeepSeek-v3.2")))
	// Zero counts do not create a series.
	assert.Equal(t, 1, testutil.CollectAndCount(m.Tokens))
}

func TestStreamStarted(t *testing.T) {
	m := New()
	done := m.StreamStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams))
	done(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StreamDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/health", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `feedbackbot_http_requests_total{code="200",route="/health"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
