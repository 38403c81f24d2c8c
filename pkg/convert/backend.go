package convert

import (
	"context"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"

	"github.com/pkg/errors"
)

var (
	// ErrWorkerUnavailable 远程 worker 未就绪，属于基础设施错误，整个运行终止
	ErrWorkerUnavailable = errors.New("转换 worker 不可用")
	ErrUnknownLib        = errors.New("未知的转换库")
)

// Request 一次文档转换
type Request struct {
	Document    model.Document
	Lib         string
	Model       string
	ImgPrompt   string
	Temperature float64
}

// Backend 把一个文档转换成 markdown
type Backend interface {
	Convert(ctx context.Context, req *Request) (string, error)
}

// Readier 需要在转换前确认可用的 backend
type Readier interface {
	Ready(ctx context.Context) error
}

// NewBackend 按 convert.lib 创建 backend
func NewBackend(ctx context.Context, cfg *config.ConvertConfig, store storage.Store) (Backend, error) {
	switch cfg.Lib {
	case config.LibDocling, config.LibMarkitdown, config.LibZerox, config.LibMarker:
		url := cfg.Workers[cfg.Lib]
		if url == "" {
			return nil, errors.Wrapf(ErrWorkerUnavailable, "未配置 convert.workers.%s", cfg.Lib)
		}
		return NewRemoteBackend(cfg.Lib, url, store, cfg.HealthTimeout), nil
	case config.LibGemini:
		return NewGeminiBackend(ctx, cfg.Gemini, cfg.Temperature, store)
	default:
		return nil, errors.Wrapf(ErrUnknownLib, "%q", cfg.Lib)
	}
}
