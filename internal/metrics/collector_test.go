package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/batch"
)

var collectorNamespaceSeq uint64

// promauto 注册到全局 registry, 每个测试用独立命名空间避免冲突
func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.callsTotal)
	assert.NotNil(t, collector.callDuration)
	assert.NotNil(t, collector.retriesTotal)
	assert.NotNil(t, collector.subCallsInFlight)
	assert.NotNil(t, collector.costTotal)
}

func TestCollector_ObserveCall(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveCall("openai-image", batch.KindGenerate, "success", 2.5)
	collector.ObserveCall("openai-image", batch.KindGenerate, "RATE_LIMITED", 0.3)

	count := testutil.CollectAndCount(collector.callsTotal)
	assert.Equal(t, 2, count, "one series per status label")

	durCount := testutil.CollectAndCount(collector.callDuration)
	assert.Greater(t, durCount, 0)
}

func TestCollector_ObserveRetry(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveRetry("openai-image", batch.KindGenerate)
	collector.ObserveRetry("openai-image", batch.KindGenerate)
	collector.ObserveRetry("openai-image", batch.KindEdit)

	value := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("openai-image", "generate"))
	assert.Equal(t, 2.0, value)
}

func TestCollector_ObserveOutcome(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveOutcome(8, 2, 0.32)
	collector.ObserveOutcome(4, 0, 0.16)

	assert.Equal(t, 12.0, testutil.ToFloat64(collector.subCallsSucceeded))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.subCallsFailed))
	assert.InDelta(t, 0.48, testutil.ToFloat64(collector.costTotal), 1e-9)
}

func TestCollector_SetInFlight(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetInFlight(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.subCallsInFlight))

	collector.SetInFlight(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.subCallsInFlight))
}
