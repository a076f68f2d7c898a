// MockBackend 的生成后端测试模拟实现。
//
// 支持按提示词编排逐次结果、错误注入与并发度测量。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/types"
)

// --- MockBackend 结构 ---

// MockBackend 是 batch.Backend 的模拟实现
type MockBackend struct {
	mu sync.Mutex

	// 响应配置
	costPerImage float64
	refPrefix    string

	// 错误编排: 自定义函数优先; 其次按提示词排队的错误脚本
	generateFunc func(ctx context.Context, p batch.CallParams) (*batch.CallResult, error)
	scripts      map[string][]error // key: prompt; 每次调用消费一个条目, nil 表示成功

	// 行为控制
	delay     time.Duration
	delayFunc func() time.Duration
	failAll   *types.Error
	block     chan struct{}

	// 调用记录与并发测量
	calls       []batch.CallParams
	inFlight    int
	maxInFlight int
	totalCalls  int
}

// NewMockBackend 创建新的 MockBackend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		costPerImage: 0.04,
		refPrefix:    "https://images.example.test/",
		scripts:      make(map[string][]error),
	}
}

// --- Builder 方法 ---

// WithDelay 为每次调用附加固定延迟
func (m *MockBackend) WithDelay(d time.Duration) *MockBackend {
	m.delay = d
	return m
}

// WithDelayFunc 为每次调用附加动态延迟（随机完成顺序场景）
func (m *MockBackend) WithDelayFunc(f func() time.Duration) *MockBackend {
	m.delayFunc = f
	return m
}

// WithError 让所有调用失败
func (m *MockBackend) WithError(err *types.Error) *MockBackend {
	m.failAll = err
	return m
}

// WithScript 为指定提示词编排逐次调用结果, nil 条目表示成功.
// 脚本耗尽后的调用一律成功。
func (m *MockBackend) WithScript(prompt string, outcomes ...error) *MockBackend {
	m.scripts[prompt] = outcomes
	return m
}

// WithGenerateFunc 完全自定义 Generate 行为
func (m *MockBackend) WithGenerateFunc(f func(ctx context.Context, p batch.CallParams) (*batch.CallResult, error)) *MockBackend {
	m.generateFunc = f
	return m
}

// WithCostPerImage 设置单张成本估算
func (m *MockBackend) WithCostPerImage(c float64) *MockBackend {
	m.costPerImage = c
	return m
}

// WithBlock 让调用阻塞到通道关闭为止（取消场景）
func (m *MockBackend) WithBlock(ch chan struct{}) *MockBackend {
	m.block = ch
	return m
}

// --- batch.Backend 实现 ---

func (m *MockBackend) Name() string { return "mock-backend" }

func (m *MockBackend) Generate(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	return m.invoke(ctx, p)
}

func (m *MockBackend) CreateVariation(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	return m.invoke(ctx, p)
}

func (m *MockBackend) Edit(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	return m.invoke(ctx, p)
}

func (m *MockBackend) invoke(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	m.mu.Lock()
	m.totalCalls++
	seq := m.totalCalls
	m.calls = append(m.calls, p)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	if m.delayFunc != nil {
		delay = m.delayFunc()
	}
	var scripted error
	hasScript := false
	if outcomes, ok := m.scripts[p.Prompt]; ok && len(outcomes) > 0 {
		scripted = outcomes[0]
		m.scripts[p.Prompt] = outcomes[1:]
		hasScript = true
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, types.NewError(types.ErrTransient, "call interrupted").WithCause(ctx.Err())
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, types.NewError(types.ErrTransient, "call interrupted").WithCause(ctx.Err())
		}
	}

	if m.generateFunc != nil {
		return m.generateFunc(ctx, p)
	}
	if m.failAll != nil {
		return nil, m.failAll
	}
	if hasScript && scripted != nil {
		return nil, scripted
	}

	refs := make([]string, p.N)
	for i := range refs {
		refs[i] = fmt.Sprintf("%s%d-%d.png", m.refPrefix, seq, i)
	}
	return &batch.CallResult{
		ImageRefs:    refs,
		CostEstimate: m.costPerImage * float64(p.N),
	}, nil
}

// --- 观测方法 ---

// MaxInFlight 返回观测到的最大并发调用数
func (m *MockBackend) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// TotalCalls 返回总调用次数
func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalCalls
}

// Calls 返回调用参数的拷贝
func (m *MockBackend) Calls() []batch.CallParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]batch.CallParams, len(m.calls))
	copy(out, m.calls)
	return out
}
