// Package imageflow provides a top-level convenience entry point for running
// image generation batches with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/imageflow"
//
//	outcome, err := imageflow.Generate(ctx, "a red fox", 10,
//	    imageflow.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    imageflow.WithModel("dall-e-2"))
//
// This is a thin wrapper around [batch.Run] with an OpenAI backend; callers
// who need a custom backend, progress callbacks, or metrics should use the
// batch package directly.
package imageflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/image"
)

// Options bundles the knobs exposed by the convenience entry point.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	Size           string
	Quality        string
	MaxConcurrency int
	MaxRetries     int
	Logger         *zap.Logger
	OnProgress     batch.ProgressFunc
}

// Option configures the batch created by [Generate].
type Option func(*Options)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option { return func(o *Options) { o.APIKey = key } }

// WithBaseURL overrides the API base URL, useful for proxies and tests.
func WithBaseURL(url string) Option { return func(o *Options) { o.BaseURL = url } }

// WithModel selects the generation model (dall-e-2, dall-e-3).
func WithModel(model string) Option { return func(o *Options) { o.Model = model } }

// WithSize sets the image size, e.g. "1024x1024".
func WithSize(size string) Option { return func(o *Options) { o.Size = size } }

// WithQuality sets the image quality (standard, hd).
func WithQuality(q string) Option { return func(o *Options) { o.Quality = q } }

// WithConcurrency bounds the number of concurrent backend calls.
func WithConcurrency(n int) Option { return func(o *Options) { o.MaxConcurrency = n } }

// WithRetries sets the per-sub-call retry budget.
func WithRetries(n int) Option { return func(o *Options) { o.MaxRetries = n } }

// WithLogger injects a structured logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithProgress registers a live progress callback.
func WithProgress(f batch.ProgressFunc) Option { return func(o *Options) { o.OnProgress = f } }

func defaultOptions() *Options {
	return &Options{
		Model:          "dall-e-3",
		Size:           "1024x1024",
		MaxConcurrency: 3,
		MaxRetries:     3,
	}
}

// Generate runs a single-prompt batch of count images and blocks until every
// sub-call reaches a terminal state. Partial failures are reported in the
// returned outcome, not as an error.
func Generate(ctx context.Context, prompt string, count int, opts ...Option) (*batch.BatchOutcome, error) {
	return GenerateAll(ctx, []string{prompt}, count, opts...)
}

// GenerateAll runs a multi-prompt batch with count images per prompt.
func GenerateAll(ctx context.Context, prompts []string, count int, opts ...Option) (*batch.BatchOutcome, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	backend := image.NewOpenAIBackend(image.OpenAIConfig{
		APIKey:  o.APIKey,
		BaseURL: o.BaseURL,
		Model:   o.Model,
	})

	req := &batch.BatchRequest{
		Kind:           batch.KindGenerate,
		Prompts:        prompts,
		Model:          o.Model,
		Size:           o.Size,
		Quality:        o.Quality,
		CountPerPrompt: count,
		MaxConcurrency: o.MaxConcurrency,
		MaxRetries:     o.MaxRetries,
	}

	return batch.Run(ctx, req, backend, image.MaxImagesPerCall(o.Model), o.Logger, o.OnProgress)
}
