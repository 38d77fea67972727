package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.providerRequestsTotal)
	assert.NotNil(t, collector.providerTokensEstimated)
	assert.NotNil(t, collector.Registry())
}

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not clash on registration.
	a := NewCollector("deepwork", zap.NewNop())
	b := NewCollector("deepwork", zap.NewNop())
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestRecordHTTPRequest(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	collector.RecordHTTPRequest("POST", "/api/chat", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/api/chat", 200, 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
	assert.Equal(t, float64(2),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/chat", "2xx")))
}

func TestRecordProviderRequest(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	collector.RecordProviderRequest("gemini", "gemini-flash-latest", "ok", 500*time.Millisecond, 100, 50)

	assert.Greater(t, testutil.CollectAndCount(collector.providerRequestsTotal), 0)
	assert.Equal(t, float64(100),
		testutil.ToFloat64(collector.providerTokensEstimated.WithLabelValues("gemini", "gemini-flash-latest", "prompt")))
	assert.Equal(t, float64(50),
		testutil.ToFloat64(collector.providerTokensEstimated.WithLabelValues("gemini", "gemini-flash-latest", "completion")))
}

func TestSetActiveSessions(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	collector.SetActiveSessions(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(collector.activeSessions))

	collector.SetActiveSessions(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.activeSessions))
}

func TestRecordUpload(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	collector.RecordUpload(".pdf", "ok", 2048)
	collector.RecordUpload(".exe", "rejected", 0)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.uploadsTotal.WithLabelValues(".pdf", "ok")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.uploadsTotal.WithLabelValues(".exe", "rejected")))
	assert.Equal(t, float64(2048), testutil.ToFloat64(collector.uploadBytes))
}

func TestConcurrentRecording(t *testing.T) {
	collector := NewCollector("deepwork", zap.NewNop())

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("GET", "/api/health", 200, time.Millisecond)
			collector.RecordProviderRequest("mock", "mock-1", "ok", time.Millisecond, 10, 5)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, float64(10),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/health", "2xx")))
}
