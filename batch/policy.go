package batch

import (
	"math"
	"math/rand"
	"time"

	"github.com/BaSui01/imageflow/types"
)

// RetryPolicy 定义子调用的重试策略
type RetryPolicy struct {
	MaxRetries     int           // 单个子调用的最大重试次数（0 表示不重试）
	InitialDelay   time.Duration // 标准退避的初始延迟
	RateLimitDelay time.Duration // 限流错误的初始延迟（应长于 InitialDelay）
	MaxDelay       time.Duration // 最大延迟时间
	Multiplier     float64       // 延迟倍增因子（指数退避）
	Jitter         bool          // 是否添加随机抖动（防止对同一限流窗口的雪崩重试）
}

// DefaultRetryPolicy 返回默认的重试策略
// 适用于大部分图像生成 API 调用场景
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// normalize 校正非法参数
func (p *RetryPolicy) normalize() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = 5 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
}

// ShouldRetry 是重试决策的纯函数: 仅取决于错误分类与已用重试次数.
// CANCELLED / INVALID_REQUEST / QUOTA_EXHAUSTED 不可重试;
// RATE_LIMITED / TRANSIENT / UNKNOWN 在预算内可重试。
func ShouldRetry(code types.ErrorCode, retryCount, maxRetries int) bool {
	if retryCount >= maxRetries {
		return false
	}
	switch code {
	case types.ErrRateLimited, types.ErrTransient, types.ErrUnknown:
		return true
	default:
		return false
	}
}

// DelayFor 计算第 attempt 次重试前的退避延迟 (attempt 从 1 开始).
// 指数退避: delay = base * Multiplier^(attempt-1), 封顶 MaxDelay;
// 限流错误使用更长的 RateLimitDelay 作为基数;
// 启用 Jitter 时附加 ±25% 随机抖动, 且不低于基数。
func (p *RetryPolicy) DelayFor(code types.ErrorCode, attempt int) time.Duration {
	base := p.InitialDelay
	if code == types.ErrRateLimited {
		base = p.RateLimitDelay
	}

	delay := float64(base) * math.Pow(p.Multiplier, float64(attempt-1))

	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(base) {
		delay = float64(base)
	}

	return time.Duration(delay)
}
