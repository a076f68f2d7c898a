package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/types"
)

func assertConserved(t *testing.T, snap BatchSnapshot) {
	t.Helper()
	assert.Equal(t, snap.TotalSubCalls, snap.Completed+snap.Failed+snap.Pending+snap.InFlight,
		"snapshot counts must sum to total")
}

func TestAggregator_Transitions(t *testing.T) {
	agg := newAggregator(3, zap.NewNop())

	snap := agg.snapshot()
	assert.Equal(t, 3, snap.Pending)
	assertConserved(t, snap)

	agg.markInFlight(0)
	agg.markInFlight(1)
	snap = agg.snapshot()
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 2, snap.InFlight)
	assertConserved(t, snap)

	agg.recordSuccess(0, ImageResult{SubCallIndex: 0, ImageRefs: []string{"a.png"}, CostEstimate: 0.04})
	agg.markRequeued(1)
	snap = agg.snapshot()
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 2, snap.Pending)
	assert.Equal(t, 0, snap.InFlight)
	assert.Equal(t, 0.04, snap.AccumulatedCost)
	assertConserved(t, snap)

	agg.markInFlight(1)
	agg.recordFailure(1, FailureRecord{SubCallIndex: 1, Code: types.ErrTransient, AttemptsMade: 4})
	agg.recordFailure(2, FailureRecord{SubCallIndex: 2, Code: types.ErrCancelled})
	snap = agg.snapshot()
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 0, snap.Pending)
	assertConserved(t, snap)
}

func TestAggregator_DuplicateTerminalIsNoOp(t *testing.T) {
	agg := newAggregator(1, zap.NewNop())

	agg.markInFlight(0)
	agg.recordSuccess(0, ImageResult{SubCallIndex: 0, CostEstimate: 0.08})

	// 重复终态不改变计数, 不重复累加成本
	agg.recordSuccess(0, ImageResult{SubCallIndex: 0, CostEstimate: 0.08})
	agg.recordFailure(0, FailureRecord{SubCallIndex: 0, Code: types.ErrUnknown})

	snap := agg.snapshot()
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 0.08, snap.AccumulatedCost)
	assertConserved(t, snap)
}

func TestAggregator_CostMonotonic(t *testing.T) {
	agg := newAggregator(4, zap.NewNop())

	prev := 0.0
	costs := []float64{0.04, 0.0, 0.12, 0.02}
	for i, c := range costs {
		agg.markInFlight(i)
		agg.recordSuccess(i, ImageResult{SubCallIndex: i, CostEstimate: c})
		snap := agg.snapshot()
		assert.GreaterOrEqual(t, snap.AccumulatedCost, prev)
		prev = snap.AccumulatedCost
	}
	assert.InDelta(t, 0.18, prev, 1e-9)
}

func TestAggregator_FinalOutcomeSortedByIndex(t *testing.T) {
	agg := newAggregator(5, zap.NewNop())

	// 乱序完成
	for _, i := range []int{3, 0, 4} {
		agg.markInFlight(i)
		agg.recordSuccess(i, ImageResult{SubCallIndex: i})
	}
	for _, i := range []int{2, 1} {
		agg.markInFlight(i)
		agg.recordFailure(i, FailureRecord{SubCallIndex: i, Code: types.ErrInvalidRequest, AttemptsMade: 1})
	}

	outcome := agg.finalOutcome(false)
	require.Len(t, outcome.Successes, 3)
	require.Len(t, outcome.Failures, 2)
	assert.False(t, outcome.WasCancelled)

	for i := 1; i < len(outcome.Successes); i++ {
		assert.Less(t, outcome.Successes[i-1].SubCallIndex, outcome.Successes[i].SubCallIndex)
	}
	for i := 1; i < len(outcome.Failures); i++ {
		assert.Less(t, outcome.Failures[i-1].SubCallIndex, outcome.Failures[i].SubCallIndex)
	}
}

func TestAggregator_EmptyOutcome(t *testing.T) {
	agg := newAggregator(0, zap.NewNop())
	outcome := agg.finalOutcome(false)
	assert.Empty(t, outcome.Successes)
	assert.Empty(t, outcome.Failures)
	assert.Zero(t, outcome.TotalCost)
}
