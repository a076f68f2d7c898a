// Package download fetches generated image references and persists them.
// The batch core never downloads image bytes itself; callers feed it the
// ImageRefs from a BatchOutcome.
package download

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result 记录单个引用的下载结果
type Result struct {
	Ref  string
	Path string
	Err  error
}

// Downloader 将图像引用落盘.
// 支持 URL 引用与 data:image/png;base64 内联引用。
type Downloader struct {
	dir         string
	client      *http.Client
	logger      *zap.Logger
	parallelism int
}

// NewDownloader 创建下载器, 目录不存在时自动创建.
func NewDownloader(dir string, parallelism int, logger *zap.Logger) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		dir:         dir,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
		parallelism: parallelism,
	}, nil
}

// FetchAll 并行下载全部引用, 单个失败不影响其余.
// 返回的切片与 refs 一一对应。
func (d *Downloader) FetchAll(ctx context.Context, refs []string, prefix string) []Result {
	results := make([]Result, len(refs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			path, err := d.fetch(gCtx, ref, fmt.Sprintf("%s_%d", prefix, i+1))
			results[i] = Result{Ref: ref, Path: path, Err: err}
			if err != nil {
				d.logger.Warn("image download failed", zap.String("ref", truncateRef(ref)), zap.Error(err))
			}
			// 失败只记录, 不终止组内其他下载
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Fetch 下载单个引用并返回落盘路径.
func (d *Downloader) Fetch(ctx context.Context, ref string) (string, error) {
	return d.fetch(ctx, ref, uuid.NewString()[:8])
}

func (d *Downloader) fetch(ctx context.Context, ref, name string) (string, error) {
	path := filepath.Join(d.dir, name+".png")

	if data, ok := strings.CutPrefix(ref, "data:image/png;base64,"); ok {
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("decode inline image: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", fmt.Errorf("write image: %w", err)
		}
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// truncateRef 避免把超长 data URI 打进日志
func truncateRef(ref string) string {
	if len(ref) > 80 {
		return ref[:80] + "..."
	}
	return ref
}
