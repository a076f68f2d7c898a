package batch

import (
	"context"

	"github.com/BaSui01/imageflow/types"
)

// CallKind 标识子调用对应的后端操作类型.
type CallKind string

const (
	KindGenerate  CallKind = "generate"
	KindVariation CallKind = "variation"
	KindEdit      CallKind = "edit"
)

// BatchRequest 表示调用方的一次逻辑请求.
// 单提示词 N 张的批次等价于同一提示词的 N 份拷贝；
// 多提示词批次按提示词逐个展开。提交后不可变。
type BatchRequest struct {
	Kind    CallKind `json:"kind"`
	Prompts []string `json:"prompts"`
	Model   string   `json:"model,omitempty"`
	Size    string   `json:"size"`
	Quality string   `json:"quality,omitempty"`
	Style   string   `json:"style,omitempty"`

	// 编辑 / 变体请求的源图与可选蒙版路径
	ImagePath string `json:"image_path,omitempty"`
	MaskPath  string `json:"mask_path,omitempty"`

	// 每个提示词期望生成的图像数
	CountPerPrompt int `json:"count_per_prompt"`
	// 同时在途子调用的上限
	MaxConcurrency int `json:"max_concurrency"`
	// 单个子调用的重试预算
	MaxRetries int `json:"max_retries"`
}

// Validate 校验请求参数, 非法时返回 INVALID_REQUEST.
func (r *BatchRequest) Validate() error {
	if len(r.Prompts) == 0 {
		// 变体请求不消费提示词内容, 但仍以提示词槽位计数展开
		return types.NewError(types.ErrInvalidRequest, "prompts must not be empty")
	}
	if r.CountPerPrompt <= 0 {
		return types.NewError(types.ErrInvalidRequest, "count_per_prompt must be positive")
	}
	if r.MaxConcurrency <= 0 {
		return types.NewError(types.ErrInvalidRequest, "max_concurrency must be positive")
	}
	if r.MaxRetries < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_retries must not be negative")
	}
	if r.Size == "" {
		return types.NewError(types.ErrInvalidRequest, "size must not be empty")
	}
	if (r.Kind == KindVariation || r.Kind == KindEdit) && r.ImagePath == "" {
		return types.NewError(types.ErrInvalidRequest, "image_path is required for variation/edit")
	}
	return nil
}

// SubCall 表示一次调度单元, 即对后端的单次网络调用.
// Index 在原始切分顺序中稳定不变, 用于结果重组;
// 完成顺序与 Index 顺序无关。
type SubCall struct {
	Index           int      `json:"index"`
	Kind            CallKind `json:"kind"`
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	Size            string   `json:"size"`
	Quality         string   `json:"quality,omitempty"`
	Style           string   `json:"style,omitempty"`
	ImagePath       string   `json:"image_path,omitempty"`
	MaskPath        string   `json:"mask_path,omitempty"`
	ImagesRequested int      `json:"images_requested"`
	RetryCount      int      `json:"retry_count"`
}

func (sc *SubCall) params() CallParams {
	return CallParams{
		Prompt:    sc.Prompt,
		Model:     sc.Model,
		Size:      sc.Size,
		Quality:   sc.Quality,
		Style:     sc.Style,
		ImagePath: sc.ImagePath,
		MaskPath:  sc.MaskPath,
		N:         sc.ImagesRequested,
	}
}

// CallParams 是传递给后端单次调用的参数.
type CallParams struct {
	Prompt    string `json:"prompt,omitempty"`
	Model     string `json:"model,omitempty"`
	Size      string `json:"size"`
	Quality   string `json:"quality,omitempty"`
	Style     string `json:"style,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	MaskPath  string `json:"mask_path,omitempty"`
	N         int    `json:"n"`
}

// CallResult 是后端单次调用的成功载荷.
// 返回的图像数可能多于或少于请求数, 核心按原样记录, 不做数量校准。
type CallResult struct {
	ImageRefs     []string `json:"image_refs"`
	RevisedPrompt string   `json:"revised_prompt,omitempty"`
	CostEstimate  float64  `json:"cost_estimate"`
}

// Backend 是对供应商生成 API 的抽象, 由调用方注入.
// 所有方法返回的错误应为已分类的 *types.Error;
// 未分类错误按 UNKNOWN 处理。
type Backend interface {
	Generate(ctx context.Context, p CallParams) (*CallResult, error)
	CreateVariation(ctx context.Context, p CallParams) (*CallResult, error)
	Edit(ctx context.Context, p CallParams) (*CallResult, error)
	Name() string
}

// ImageResult 是单个子调用的终态成功结果.
type ImageResult struct {
	SubCallIndex  int      `json:"sub_call_index"`
	ImageRefs     []string `json:"image_refs"`
	RevisedPrompt string   `json:"revised_prompt,omitempty"`
	CostEstimate  float64  `json:"cost_estimate"`
}

// FailureRecord 是单个子调用的终态失败记录.
type FailureRecord struct {
	SubCallIndex int             `json:"sub_call_index"`
	Code         types.ErrorCode `json:"code"`
	Message      string          `json:"message"`
	AttemptsMade int             `json:"attempts_made"`
}

// BatchSnapshot 是聚合状态的即时只读拷贝.
// 不变量: Completed + Failed + Pending + InFlight == TotalSubCalls。
type BatchSnapshot struct {
	TotalSubCalls   int     `json:"total_sub_calls"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Pending         int     `json:"pending"`
	InFlight        int     `json:"in_flight"`
	AccumulatedCost float64 `json:"accumulated_cost"`
}

// BatchOutcome 是批次到达终态后的最终结果.
// Successes 与 Failures 均按 SubCallIndex 升序排列。
type BatchOutcome struct {
	Successes    []ImageResult   `json:"successes"`
	Failures     []FailureRecord `json:"failures"`
	TotalCost    float64         `json:"total_cost"`
	WasCancelled bool            `json:"was_cancelled"`
}

// ProgressFunc 在每次子调用状态转换后被调用, 可能来自任意 worker goroutine.
// 回调必须轻量且不阻塞, 否则会拖慢 worker 吞吐。
type ProgressFunc func(BatchSnapshot)

// Observer 接收调度过程的度量事件, 由 internal/metrics 等实现.
type Observer interface {
	// ObserveCall 记录一次后端调用及其耗时, status 为 success / 错误码。
	ObserveCall(provider string, kind CallKind, status string, seconds float64)
	// ObserveRetry 记录一次重试入队。
	ObserveRetry(provider string, kind CallKind)
	// ObserveOutcome 记录批次终态汇总。
	ObserveOutcome(succeeded, failed int, cost float64)
	// SetInFlight 更新在途子调用数。
	SetInFlight(n int)
}
