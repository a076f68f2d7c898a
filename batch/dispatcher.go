package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/types"
)

var (
	// ErrAlreadyRan 表示 Dispatcher 被重复使用; 每个批次应创建新实例.
	ErrAlreadyRan = errors.New("dispatcher already ran a batch")
)

const tracerName = "github.com/BaSui01/imageflow/batch"

// Config 配置调度器.
type Config struct {
	// 同时在途子调用的上限
	MaxConcurrency int `json:"max_concurrency"`
	// 重试策略
	Policy *RetryPolicy `json:"-"`
}

// DefaultConfig 返回合理的默认值.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		Policy:         DefaultRetryPolicy(),
	}
}

// Dispatcher 以有界并发执行一批子调用, 处理重试与取消, 发布进度.
// 单次使用: 一个 Dispatcher 对应一个批次, Cancel 作用于当前批次。
type Dispatcher struct {
	cfg      Config
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer

	started    atomic.Bool
	cancelled  atomic.Bool
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// Option 配置 Dispatcher 的可选项.
type Option func(*Dispatcher)

// WithObserver 注入度量接收器 (如 internal/metrics 的 Collector).
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher 创建调度器.
func NewDispatcher(cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	cfg.Policy.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		cancelCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cancel 协作式取消当前批次, 可从任意 goroutine 并发调用.
// worker 在取出新子调用前与重试前检查取消标志; 已在途的网络调用
// 不会被强行中断, 其结果若在 Run 返回前到达则照常记录。
func (d *Dispatcher) Cancel() {
	d.cancelOnce.Do(func() {
		d.cancelled.Store(true)
		close(d.cancelCh)
	})
}

func (d *Dispatcher) isCancelled(ctx context.Context) bool {
	return d.cancelled.Load() || ctx.Err() != nil
}

// Run 执行子调用列表直至终态, 返回按 Index 排序的最终结果.
// 每个子调用的失败不会中止整个批次; Run 始终跑到所有子调用
// 进入终态（或取消排空）后才返回。空批次立即返回空结果。
func (d *Dispatcher) Run(ctx context.Context, subCalls []*SubCall, backend Backend, onProgress ProgressFunc) (*BatchOutcome, error) {
	if d.started.Swap(true) {
		return nil, ErrAlreadyRan
	}

	batchID := uuid.NewString()[:8]
	ctx, span := d.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.sub_calls", len(subCalls)),
		attribute.Int("batch.max_concurrency", d.cfg.MaxConcurrency),
	))
	defer span.End()

	agg := newAggregator(len(subCalls), d.logger)

	if len(subCalls) == 0 {
		return agg.finalOutcome(false), nil
	}

	// FIFO 队列, 容量等于子调用总数: 每个子调用同一时刻只存在一份,
	// 因此重试回插绝不阻塞。
	queue := make(chan *SubCall, len(subCalls))
	for _, sc := range subCalls {
		queue <- sc
	}

	// outstanding 统计未进入终态的子调用; 归零时关闭队列让 worker 退出
	var outstanding atomic.Int32
	outstanding.Store(int32(len(subCalls)))
	var closeOnce sync.Once
	settle := func() {
		if outstanding.Add(-1) == 0 {
			closeOnce.Do(func() { close(queue) })
		}
	}

	workers := d.cfg.MaxConcurrency
	if workers > len(subCalls) {
		workers = len(subCalls)
	}

	d.logger.Info("batch dispatch started",
		zap.String("batch_id", batchID),
		zap.String("backend", backend.Name()),
		zap.Int("sub_calls", len(subCalls)),
		zap.Int("workers", workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, batchID, queue, agg, backend, onProgress, settle)
		}()
	}
	wg.Wait()

	cancelled := d.isCancelled(ctx)
	outcome := agg.finalOutcome(cancelled)

	if d.observer != nil {
		d.observer.ObserveOutcome(len(outcome.Successes), len(outcome.Failures), outcome.TotalCost)
	}
	if cancelled {
		span.SetStatus(codes.Error, "cancelled")
	}

	d.logger.Info("batch dispatch finished",
		zap.String("batch_id", batchID),
		zap.Int("succeeded", len(outcome.Successes)),
		zap.Int("failed", len(outcome.Failures)),
		zap.Float64("total_cost", outcome.TotalCost),
		zap.Bool("cancelled", cancelled),
	)

	return outcome, nil
}

// worker 循环消费队列直到队列关闭.
// 每个子调用在同一时刻只被一个 worker 持有, 绝不并发执行两次;
// 重试回插的是同一条记录（RetryCount 递增）, 不是副本。
func (d *Dispatcher) worker(ctx context.Context, batchID string, queue chan *SubCall, agg *aggregator, backend Backend, onProgress ProgressFunc, settle func()) {
	for sc := range queue {
		if d.isCancelled(ctx) {
			d.finalizeCancelled(agg, sc, onProgress)
			settle()
			continue
		}

		agg.markInFlight(sc.Index)
		d.notify(agg, onProgress)

		result, err := d.invoke(ctx, backend, sc)
		if err == nil {
			agg.recordSuccess(sc.Index, ImageResult{
				SubCallIndex:  sc.Index,
				ImageRefs:     result.ImageRefs,
				RevisedPrompt: result.RevisedPrompt,
				CostEstimate:  result.CostEstimate,
			})
			d.notify(agg, onProgress)
			settle()
			continue
		}

		code := types.GetErrorCode(err)

		// 取消优先于重试: 未决子调用以 CANCELLED 终结
		if d.isCancelled(ctx) && ShouldRetry(code, sc.RetryCount, d.cfg.Policy.MaxRetries) {
			d.finalizeCancelled(agg, sc, onProgress)
			settle()
			continue
		}

		if ShouldRetry(code, sc.RetryCount, d.cfg.Policy.MaxRetries) {
			sc.RetryCount++
			delay := d.cfg.Policy.DelayFor(code, sc.RetryCount)
			agg.markRequeued(sc.Index)
			d.notify(agg, onProgress)
			if d.observer != nil {
				d.observer.ObserveRetry(backend.Name(), sc.Kind)
			}
			d.logger.Debug("sub-call requeued",
				zap.String("batch_id", batchID),
				zap.Int("index", sc.Index),
				zap.String("code", string(code)),
				zap.Int("retry", sc.RetryCount),
				zap.Duration("delay", delay),
			)

			// 退避只挂起当前 worker, 队列对其余 worker 保持可用,
			// 避免队头阻塞
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				queue <- sc
			case <-d.cancelCh:
				timer.Stop()
				d.finalizeCancelled(agg, sc, onProgress)
				settle()
			case <-ctx.Done():
				timer.Stop()
				d.finalizeCancelled(agg, sc, onProgress)
				settle()
			}
			continue
		}

		agg.recordFailure(sc.Index, FailureRecord{
			SubCallIndex: sc.Index,
			Code:         code,
			Message:      err.Error(),
			AttemptsMade: sc.RetryCount + 1,
		})
		d.notify(agg, onProgress)
		d.logger.Warn("sub-call failed",
			zap.String("batch_id", batchID),
			zap.Int("index", sc.Index),
			zap.String("code", string(code)),
			zap.Int("attempts", sc.RetryCount+1),
			zap.Error(err),
		)
		settle()
	}
}

// invoke 按子调用类型分派到后端对应操作
func (d *Dispatcher) invoke(ctx context.Context, backend Backend, sc *SubCall) (*CallResult, error) {
	ctx, span := d.tracer.Start(ctx, "batch.subcall", trace.WithAttributes(
		attribute.Int("subcall.index", sc.Index),
		attribute.String("subcall.kind", string(sc.Kind)),
		attribute.Int("subcall.attempt", sc.RetryCount+1),
		attribute.Int("subcall.n", sc.ImagesRequested),
	))
	defer span.End()

	start := time.Now()
	var result *CallResult
	var err error
	switch sc.Kind {
	case KindVariation:
		result, err = backend.CreateVariation(ctx, sc.params())
	case KindEdit:
		result, err = backend.Edit(ctx, sc.params())
	default:
		result, err = backend.Generate(ctx, sc.params())
	}

	status := "success"
	if err != nil {
		status = string(types.GetErrorCode(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	if d.observer != nil {
		d.observer.ObserveCall(backend.Name(), sc.Kind, status, time.Since(start).Seconds())
	}

	return result, err
}

// finalizeCancelled 将未决子调用以 CANCELLED 终结.
// AttemptsMade 记录实际完成的尝试次数（可能为 0）。
func (d *Dispatcher) finalizeCancelled(agg *aggregator, sc *SubCall, onProgress ProgressFunc) {
	agg.recordFailure(sc.Index, FailureRecord{
		SubCallIndex: sc.Index,
		Code:         types.ErrCancelled,
		Message:      "batch cancelled before sub-call resolved",
		AttemptsMade: sc.RetryCount,
	})
	d.notify(agg, onProgress)
}

func (d *Dispatcher) notify(agg *aggregator, onProgress ProgressFunc) {
	snap := agg.snapshot()
	if d.observer != nil {
		d.observer.SetInFlight(snap.InFlight)
	}
	if onProgress != nil {
		onProgress(snap)
	}
}

// Run 是便捷入口: 校验并切分请求, 以请求自带的并发与重试参数执行.
// 切分失败同步返回, 不启动任何调度。
func Run(ctx context.Context, req *BatchRequest, backend Backend, maxImagesPerCall int, logger *zap.Logger, onProgress ProgressFunc, opts ...Option) (*BatchOutcome, error) {
	subCalls, err := Split(req, maxImagesPerCall)
	if err != nil {
		return nil, err
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = req.MaxRetries

	d := NewDispatcher(Config{
		MaxConcurrency: req.MaxConcurrency,
		Policy:         policy,
	}, logger, opts...)

	return d.Run(ctx, subCalls, backend, onProgress)
}
