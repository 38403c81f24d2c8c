package llm

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result 批量补全中单个请求的结果
type Result struct {
	Response *Response
	Err      error
}

// ProgressWriter 进度条输出位置，测试中可替换
var ProgressWriter io.Writer = os.Stderr

// BatchComplete 并发执行请求，结果与 reqs 顺序一致；单个请求失败不影响其他请求
func BatchComplete(ctx context.Context, c Completer, reqs []*Request, workers int) []Result {
	results := make([]Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(reqs) {
		zap.S().Debugf("worker 数多于请求数，减少到 %d", len(reqs))
		workers = len(reqs)
	}
	zap.S().Infof("使用 %s 执行 %d 个补全请求，并发 %d", reqs[0].Model, len(reqs), workers)

	bar := progressbar.NewOptions(len(reqs),
		progressbar.OptionSetWriter(ProgressWriter),
		progressbar.OptionSetDescription("Completions"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Close()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = Result{Err: gctx.Err()}
				return nil
			}
			t := time.Now()
			resp, err := c.Complete(gctx, req)
			if err == nil && resp.Latency == 0 && !resp.Cached {
				resp.Latency = time.Since(t)
			}
			results[i] = Result{Response: resp, Err: err}
			_ = bar.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	zap.S().Infof("补全完成: 成功 %d, 失败 %d, 耗时 %s", len(reqs)-failed, failed, time.Since(start).Round(time.Millisecond))
	return results
}
