// =============================================================================
// ImageFlow 主入口
// =============================================================================
// 批量图像生成 CLI，包含进度显示、Prometheus 指标、OpenTelemetry 追踪
//
// 使用方法:
//
//	imageflow generate --prompt "a red fox" --count 10       # 批量生成
//	imageflow variation --image cat.png --count 4            # 生成变体
//	imageflow edit --image cat.png --prompt "add a top hat"  # 编辑图像
//	imageflow version                                        # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/imageflow/batch"
	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/download"
	"github.com/BaSui01/imageflow/image"
	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runBatch(batch.KindGenerate, os.Args[2:])
	case "variation":
		runBatch(batch.KindVariation, os.Args[2:])
	case "edit":
		runBatch(batch.KindEdit, os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// promptList 支持重复 --prompt 参数
type promptList []string

func (p *promptList) String() string { return strings.Join(*p, ", ") }

func (p *promptList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

// =============================================================================
// 🖼️ 批量生成命令
// =============================================================================

func runBatch(kind batch.CallKind, args []string) {
	fs := flag.NewFlagSet(string(kind), flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	var prompts promptList
	fs.Var(&prompts, "prompt", "Prompt text (repeatable)")
	count := fs.Int("count", 1, "Images per prompt")
	model := fs.String("model", "", "Model override (dall-e-2, dall-e-3)")
	size := fs.String("size", "1024x1024", "Image size")
	quality := fs.String("quality", "", "Image quality (standard, hd)")
	style := fs.String("style", "", "Image style (vivid, natural)")
	imagePath := fs.String("image", "", "Source image for variation/edit")
	maskPath := fs.String("mask", "", "Mask image for edit")
	concurrency := fs.Int("concurrency", 0, "Max concurrent calls (overrides config)")
	retries := fs.Int("retries", -1, "Retry budget per call (overrides config)")
	outDir := fs.String("out", "", "Download directory (overrides config)")
	noDownload := fs.Bool("no-download", false, "Skip downloading, print refs only")
	fs.Parse(args)

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 变体请求不需要提示词文本, 以空槽位按 count 展开
	if len(prompts) == 0 && kind == batch.KindVariation {
		prompts = promptList{""}
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting ImageFlow",
		zap.String("version", Version),
		zap.String("command", string(kind)),
	)

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelProviders.Shutdown(shutdownCtx)
		}()
	}

	collector := metrics.NewCollector("imageflow", logger)

	// 组装请求
	chosenModel := cfg.Backend.Model
	if *model != "" {
		chosenModel = *model
	}
	req := &batch.BatchRequest{
		Kind:           kind,
		Prompts:        prompts,
		Model:          chosenModel,
		Size:           *size,
		Quality:        *quality,
		Style:          *style,
		ImagePath:      *imagePath,
		MaskPath:       *maskPath,
		CountPerPrompt: *count,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		MaxRetries:     cfg.Dispatch.MaxRetries,
	}
	if *concurrency > 0 {
		req.MaxConcurrency = *concurrency
	}
	if *retries >= 0 {
		req.MaxRetries = *retries
	}

	subCalls, err := batch.Split(req, image.MaxImagesPerCall(chosenModel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid request: %v\n", err)
		os.Exit(1)
	}

	backend := image.NewOpenAIBackend(image.OpenAIConfig{
		APIKey:            cfg.Backend.APIKey,
		BaseURL:           cfg.Backend.BaseURL,
		Model:             chosenModel,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerMinute: cfg.Backend.RequestsPerMinute,
	})

	dispatcher := batch.NewDispatcher(batch.Config{
		MaxConcurrency: req.MaxConcurrency,
		Policy: &batch.RetryPolicy{
			MaxRetries:     req.MaxRetries,
			InitialDelay:   cfg.Dispatch.InitialDelay,
			RateLimitDelay: cfg.Dispatch.RateLimitDelay,
			MaxDelay:       cfg.Dispatch.MaxDelay,
			Multiplier:     cfg.Dispatch.Multiplier,
			Jitter:         cfg.Dispatch.Jitter,
		},
	}, logger, batch.WithObserver(collector))

	// Ctrl-C 协作式取消: 排空未开始的子调用, 已在途的照常收尾
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ncancelling, draining pending sub-calls...")
		dispatcher.Cancel()
	}()

	outcome, err := dispatcher.Run(context.Background(), subCalls, backend, renderProgress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dispatch failed: %v\n", err)
		os.Exit(1)
	}

	// 下载成功结果
	if !*noDownload && len(outcome.Successes) > 0 {
		dir := cfg.Download.Dir
		if *outDir != "" {
			dir = *outDir
		}
		downloadResults(context.Background(), logger, dir, cfg.Download.Parallelism, outcome)
	}

	printReport(outcome, req)

	if len(outcome.Failures) > 0 {
		os.Exit(1)
	}
}

// renderProgress 在 stderr 上重绘单行进度
func renderProgress(s batch.BatchSnapshot) {
	fmt.Fprintf(os.Stderr, "\r[%d/%d] in-flight=%d pending=%d failed=%d cost=$%.3f  ",
		s.Completed, s.TotalSubCalls, s.InFlight, s.Pending, s.Failed, s.AccumulatedCost)
}

func downloadResults(ctx context.Context, logger *zap.Logger, dir string, parallelism int, outcome *batch.BatchOutcome) {
	d, err := download.NewDownloader(dir, parallelism, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create download dir: %v\n", err)
		return
	}

	for _, s := range outcome.Successes {
		prefix := fmt.Sprintf("image_%d", s.SubCallIndex)
		for _, r := range d.FetchAll(ctx, s.ImageRefs, prefix) {
			if r.Err != nil {
				fmt.Fprintf(os.Stderr, "download failed: %v\n", r.Err)
				continue
			}
			fmt.Println(r.Path)
		}
	}
}

// printReport 打印批次终态汇总, 含逐条失败明细
func printReport(outcome *batch.BatchOutcome, req *batch.BatchRequest) {
	succeeded := 0
	for _, s := range outcome.Successes {
		succeeded += len(s.ImageRefs)
	}
	requested := len(req.Prompts) * req.CountPerPrompt

	fmt.Printf("\n%d of %d images succeeded (estimated cost $%.3f)\n",
		succeeded, requested, outcome.TotalCost)

	if outcome.WasCancelled {
		fmt.Println("batch was cancelled before completion")
	}
	for _, f := range outcome.Failures {
		fmt.Printf("  sub-call %d failed: %s (%s, %d attempts)\n",
			f.SubCallIndex, f.Message, f.Code, f.AttemptsMade)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ImageFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ImageFlow - Batch Image Generation CLI

Usage:
  imageflow <command> [options]

Commands:
  generate   Generate images from text prompts
  variation  Create variations of an existing image
  edit       Edit an existing image with a prompt
  version    Show version information
  help       Show this help message

Common options:
  --config <path>     Path to configuration file (YAML)
  --prompt <text>     Prompt text (repeatable for multi-prompt batches)
  --count <n>         Images per prompt (default 1)
  --model <name>      Model override (dall-e-2, dall-e-3)
  --size <wxh>        Image size (default 1024x1024)
  --quality <q>       Image quality (standard, hd)
  --style <s>         Image style (vivid, natural)
  --image <path>      Source image for variation/edit
  --mask <path>       Mask image for edit
  --concurrency <n>   Max concurrent calls
  --retries <n>       Retry budget per call
  --out <dir>         Download directory
  --no-download       Print image refs instead of downloading

Examples:
  imageflow generate --prompt "a red fox" --count 10
  imageflow generate --prompt "a fox" --prompt "an owl" --model dall-e-2
  imageflow variation --image cat.png --count 4 --size 512x512
  imageflow edit --image cat.png --mask mask.png --prompt "add a top hat"
  imageflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	// 构建 logger
	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
