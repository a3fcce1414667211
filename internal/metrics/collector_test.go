package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/dbpool/internal/database"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.poolStateTransitions)
	assert.NotNil(t, collector.poolHealthChecks)
	assert.NotNil(t, collector.poolRecoveries)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry(), nextTestNamespace(), zap.NewNop())

	// 记录请求
	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/health", 503, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("GET", "/health", 204, 50*time.Millisecond, 0, 0)

	// 状态码按段归类
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_PoolEvents(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry(), nextTestNamespace(), zap.NewNop())

	collector.RecordStateTransition(database.StateHealthy, database.StateDegraded)
	collector.RecordStateTransition(database.StateHealthy, database.StateDegraded)
	collector.RecordHealthCheck(database.HealthDegraded, nil)
	collector.RecordHealthCheck("", errors.New("pool closed"))
	collector.RecordRecovery(nil)
	collector.RecordRecovery(errors.New("gave up"))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.poolStateTransitions.WithLabelValues("healthy", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.poolHealthChecks.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.poolHealthChecks.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.poolRecoveries.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.poolRecoveries.WithLabelValues("failure")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry(), nextTestNamespace(), zap.NewNop())

	// 并发记录多个指标
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/stats", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordHealthCheck(database.HealthHealthy, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/stats", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.poolHealthChecks.WithLabelValues("healthy")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	namespace := nextTestNamespace()
	collector := NewCollectorWithRegistry(registry, namespace, zap.NewNop())

	collector.RecordHTTPRequest("GET", "/ready", 200, 100*time.Millisecond, 0, 0)

	// 同一 registry 重复注册应 panic
	assert.Panics(t, func() {
		NewCollectorWithRegistry(registry, namespace, zap.NewNop())
	})

	count, err := testutil.GatherAndCount(registry, namespace+"_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 100: "unknown"}
	for code, want := range cases {
		assert.Equal(t, want, statusCode(code), "code %d", code)
	}
}
