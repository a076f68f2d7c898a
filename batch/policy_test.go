package batch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/types"
)

func TestShouldRetry_CodeClassification(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want bool
	}{
		{types.ErrRateLimited, true},
		{types.ErrTransient, true},
		{types.ErrUnknown, true},
		{types.ErrInvalidRequest, false},
		{types.ErrQuotaExhausted, false},
		{types.ErrCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, batch.ShouldRetry(tt.code, 0, 3))
		})
	}
}

func TestShouldRetry_BudgetExhaustion(t *testing.T) {
	// 预算内可重试, 达到上限后不可
	assert.True(t, batch.ShouldRetry(types.ErrTransient, 2, 3))
	assert.False(t, batch.ShouldRetry(types.ErrTransient, 3, 3))
	assert.False(t, batch.ShouldRetry(types.ErrTransient, 5, 3))

	// MaxRetries 为 0 时一律不重试
	assert.False(t, batch.ShouldRetry(types.ErrRateLimited, 0, 0))
}

func TestDelayFor_ExponentialWithoutJitter(t *testing.T) {
	p := &batch.RetryPolicy{
		MaxRetries:     5,
		InitialDelay:   1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	assert.Equal(t, 1*time.Second, p.DelayFor(types.ErrTransient, 1))
	assert.Equal(t, 2*time.Second, p.DelayFor(types.ErrTransient, 2))
	assert.Equal(t, 4*time.Second, p.DelayFor(types.ErrTransient, 3))

	// 限流错误以更长的基数退避
	assert.Equal(t, 5*time.Second, p.DelayFor(types.ErrRateLimited, 1))
	assert.Equal(t, 10*time.Second, p.DelayFor(types.ErrRateLimited, 2))
}

func TestDelayFor_CappedAtMaxDelay(t *testing.T) {
	p := &batch.RetryPolicy{
		InitialDelay:   1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       8 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	assert.Equal(t, 8*time.Second, p.DelayFor(types.ErrTransient, 10))
	assert.Equal(t, 8*time.Second, p.DelayFor(types.ErrRateLimited, 10))
}

func TestDelayFor_JitterBounds(t *testing.T) {
	p := &batch.RetryPolicy{
		InitialDelay:   1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}

	// 抖动后仍不低于基数, 不高于封顶值的 1.25 倍
	for i := 0; i < 200; i++ {
		d := p.DelayFor(types.ErrTransient, 3)
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)

		rl := p.DelayFor(types.ErrRateLimited, 1)
		assert.GreaterOrEqual(t, rl, 5*time.Second)
		assert.LessOrEqual(t, rl, 6250*time.Millisecond)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := batch.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 1*time.Second, p.InitialDelay)
	assert.Equal(t, 5*time.Second, p.RateLimitDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.True(t, p.Jitter)
}
