package batch

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// subCallState 是聚合器内部的子调用状态机
type subCallState uint8

const (
	statePending subCallState = iota
	stateInFlight
	stateDone
)

// aggregator 负责线程安全的批次簿记.
// 仅由 Dispatcher 的 worker 写入; 进度回调与最终结果通过快照拷贝读取。
// 每个 Index 只允许进入终态一次; 重复的终态转换按防御性 no-op 处理,
// 并记录 error 级日志（而非 panic）, 见 DESIGN.md。
type aggregator struct {
	mu     sync.Mutex
	logger *zap.Logger

	total     int
	pending   int
	inFlight  int
	completed int
	failed    int
	cost      float64

	states    []subCallState
	successes map[int]ImageResult
	failures  map[int]FailureRecord
}

func newAggregator(total int, logger *zap.Logger) *aggregator {
	return &aggregator{
		logger:    logger,
		total:     total,
		pending:   total,
		states:    make([]subCallState, total),
		successes: make(map[int]ImageResult, total),
		failures:  make(map[int]FailureRecord),
	}
}

// markInFlight 将子调用从 pending 转入 inFlight
func (a *aggregator) markInFlight(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.states[index] != statePending {
		a.logger.Error("invalid in-flight transition", zap.Int("index", index))
		return
	}
	a.states[index] = stateInFlight
	a.pending--
	a.inFlight++
}

// markRequeued 将重试中的子调用转回 pending
func (a *aggregator) markRequeued(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.states[index] != stateInFlight {
		a.logger.Error("invalid requeue transition", zap.Int("index", index))
		return
	}
	a.states[index] = statePending
	a.inFlight--
	a.pending++
}

// recordSuccess 记录终态成功, 同时累加成本.
// AccumulatedCost 严格单调不减。
func (a *aggregator) recordSuccess(index int, result ImageResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.states[index] == stateDone {
		a.logger.Error("duplicate terminal resolution", zap.Int("index", index))
		return
	}
	a.leaveNonTerminal(index)
	a.states[index] = stateDone
	a.completed++
	a.cost += result.CostEstimate
	a.successes[index] = result
}

// recordFailure 记录终态失败
func (a *aggregator) recordFailure(index int, record FailureRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.states[index] == stateDone {
		a.logger.Error("duplicate terminal resolution", zap.Int("index", index))
		return
	}
	a.leaveNonTerminal(index)
	a.states[index] = stateDone
	a.failed++
	a.failures[index] = record
}

// leaveNonTerminal 离开当前非终态, 调用方必须持有锁
func (a *aggregator) leaveNonTerminal(index int) {
	switch a.states[index] {
	case statePending:
		a.pending--
	case stateInFlight:
		a.inFlight--
	}
}

// snapshot 返回即时状态的只读拷贝, 绝不返回内部引用
func (a *aggregator) snapshot() BatchSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return BatchSnapshot{
		TotalSubCalls:   a.total,
		Completed:       a.completed,
		Failed:          a.failed,
		Pending:         a.pending,
		InFlight:        a.inFlight,
		AccumulatedCost: a.cost,
	}
}

// finalOutcome 构造最终结果, 仅在所有子调用进入终态后有效.
// Successes 与 Failures 按 Index 升序排列, 与完成顺序无关。
func (a *aggregator) finalOutcome(cancelled bool) *BatchOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	outcome := &BatchOutcome{
		Successes:    make([]ImageResult, 0, len(a.successes)),
		Failures:     make([]FailureRecord, 0, len(a.failures)),
		TotalCost:    a.cost,
		WasCancelled: cancelled,
	}
	for _, r := range a.successes {
		outcome.Successes = append(outcome.Successes, r)
	}
	for _, f := range a.failures {
		outcome.Failures = append(outcome.Failures, f)
	}
	sort.Slice(outcome.Successes, func(i, j int) bool {
		return outcome.Successes[i].SubCallIndex < outcome.Successes[j].SubCallIndex
	})
	sort.Slice(outcome.Failures, func(i, j int) bool {
		return outcome.Failures[i].SubCallIndex < outcome.Failures[j].SubCallIndex
	})
	return outcome
}
