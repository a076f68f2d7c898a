package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/types"
)

// OpenAIBackend 通过 OpenAI 图像接口执行生成, 实现 batch.Backend.
type OpenAIBackend struct {
	cfg     OpenAIConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIBackend 创建 OpenAI 图像后端.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	// 客户端侧限流, 在供应商限流之前先自我约束
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}

	return &OpenAIBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (b *OpenAIBackend) Name() string { return "openai-image" }

func (b *OpenAIBackend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return types.NewError(types.ErrTransient, "rate limiter wait interrupted").
			WithCause(err).
			WithProvider(b.Name())
	}
	return nil
}

func (b *OpenAIBackend) model(p batch.CallParams) string {
	if p.Model != "" {
		return p.Model
	}
	return b.cfg.Model
}

type dalleRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

type dalleResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// Generate 从文本提示生成图像.
func (b *OpenAIBackend) Generate(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	model := b.model(p)
	body := dalleRequest{
		Model:  model,
		Prompt: p.Prompt,
		N:      p.N,
		Size:   p.Size,
	}
	if body.N == 0 {
		body.N = 1
	}
	if body.Size == "" {
		body.Size = "1024x1024"
	}
	if p.Quality != "" {
		body.Quality = p.Quality
	}
	if p.Style != "" {
		body.Style = p.Style
	}

	payload, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(b.cfg.BaseURL, "/")+"/v1/images/generations",
		bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).
			WithProvider(b.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	dResp, err := b.do(httpReq)
	if err != nil {
		return nil, err
	}

	refs, revised := collectRefs(dResp)
	return &batch.CallResult{
		ImageRefs:     refs,
		RevisedPrompt: revised,
		CostEstimate:  GenerationCost(body.Size, body.Quality, len(refs)),
	}, nil
}

// CreateVariation 生成已有图像的变体.
func (b *OpenAIBackend) CreateVariation(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	if p.ImagePath == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "image path is required").
			WithProvider(b.Name())
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFilePart(writer, "image", p.ImagePath); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read source image").
			WithCause(err).
			WithProvider(b.Name())
	}
	if p.N > 0 {
		_ = writer.WriteField("n", strconv.Itoa(p.N))
	}
	if p.Size != "" {
		_ = writer.WriteField("size", p.Size)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(b.cfg.BaseURL, "/")+"/v1/images/variations",
		&buf)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).
			WithProvider(b.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	dResp, err := b.do(httpReq)
	if err != nil {
		return nil, err
	}

	refs, _ := collectRefs(dResp)
	return &batch.CallResult{
		ImageRefs:    refs,
		CostEstimate: VariationCost(p.Size, len(refs)),
	}, nil
}

// Edit 按提示修改已有图像, 可附带蒙版限定编辑区域.
func (b *OpenAIBackend) Edit(ctx context.Context, p batch.CallParams) (*batch.CallResult, error) {
	if p.ImagePath == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "image path is required").
			WithProvider(b.Name())
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFilePart(writer, "image", p.ImagePath); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read source image").
			WithCause(err).
			WithProvider(b.Name())
	}
	// 提供后添加蒙版
	if p.MaskPath != "" {
		if err := writeFilePart(writer, "mask", p.MaskPath); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "failed to read mask image").
				WithCause(err).
				WithProvider(b.Name())
		}
	}

	_ = writer.WriteField("prompt", p.Prompt)
	if p.Model != "" {
		_ = writer.WriteField("model", p.Model)
	}
	if p.N > 0 {
		_ = writer.WriteField("n", strconv.Itoa(p.N))
	}
	if p.Size != "" {
		_ = writer.WriteField("size", p.Size)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(b.cfg.BaseURL, "/")+"/v1/images/edits",
		&buf)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).
			WithProvider(b.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	dResp, err := b.do(httpReq)
	if err != nil {
		return nil, err
	}

	refs, _ := collectRefs(dResp)
	return &batch.CallResult{
		ImageRefs:    refs,
		CostEstimate: VariationCost(p.Size, len(refs)),
	}, nil
}

// do 执行请求并把失败归入统一错误分类
func (b *OpenAIBackend) do(req *http.Request) (*dalleResponse, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError(b.Name(), resp.StatusCode, errBody)
	}

	var dResp dalleResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, types.NewError(types.ErrUnknown, "failed to decode response").
			WithCause(err).
			WithProvider(b.Name())
	}
	return &dResp, nil
}

// collectRefs 提取图像引用与改写后的提示词.
// 响应格式为 url 时引用即 URL, 为 b64_json 时引用带 data: 前缀。
func collectRefs(resp *dalleResponse) (refs []string, revised string) {
	refs = make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			refs = append(refs, d.URL)
		} else if d.B64JSON != "" {
			refs = append(refs, "data:image/png;base64,"+d.B64JSON)
		}
		if revised == "" && d.RevisedPrompt != "" {
			revised = d.RevisedPrompt
		}
	}
	return refs, revised
}

func writeFilePart(writer *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := writer.CreateFormFile(field, "image.png")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}
