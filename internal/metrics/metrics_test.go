package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveRun("ollama", OutcomeSuccess, 2*time.Second)
	m.ObserveRun("ollama", OutcomeSuccess, time.Second)
	m.ObserveRun("ollama", OutcomeError, 10*time.Millisecond)
	m.IncFallback("ollama", "openai_compatible_fallback")
	m.IncEmbeddingLookup("memory")
	m.IncEmbeddingLookup("memory")
	m.IncEmbeddingLookup("provider")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ollama", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ollama", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("ollama", "openai_compatible_fallback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingCache.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCache.WithLabelValues("provider")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("ollama", OutcomeSuccess, time.Second)
		m.IncFallback("a", "b")
		m.IncEmbeddingLookup("memory")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRun("openai_compatible", OutcomeCancelled, time.Second)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `localgpt_runs_total{outcome="cancelled",provider="openai_compatible"} 1`)
	assert.Contains(t, string(body), "localgpt_run_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
