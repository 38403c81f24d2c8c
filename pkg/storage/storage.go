package storage

import (
	"context"
	"io"
	"time"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
)

var ErrNotExist = errors.New("对象不存在")

// Object 存储中的一个文件
type Object struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store 报告源文档所在的存储
type Store interface {
	// List 递归列出 prefix 下的全部文件
	List(ctx context.Context, prefix string) ([]Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// URI 给外部服务使用的地址，本地存储返回绝对路径，GCS 返回 gs://
	URI(path string) string
	Close() error
}

func NewStore(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	if cfg == nil {
		return NewLocalStore(), nil
	}
	switch cfg.Driver {
	case config.StorageDriverLocal:
		return NewLocalStore(), nil
	case config.StorageDriverGCS:
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, errors.Errorf("不支持的存储类型 %q", cfg.Driver)
	}
}

// ReadAll 读取整个文件
func ReadAll(ctx context.Context, s Store, path string) ([]byte, error) {
	r, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
