package registry

import (
	"context"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"

	"github.com/pkg/errors"
)

// Registry 记录每个配置键的运行状态，扫描时用来跳过已完成的组合
type Registry interface {
	// Get 返回该键最近一次的运行记录，不存在时返回 nil
	Get(ctx context.Context, key string) (*model.RunRecord, error)
	Save(ctx context.Context, rec *model.RunRecord) error
	Close() error
}

func NewRegistry(ctx context.Context, cfg *config.RegistryConfig, outputRoot string) (Registry, error) {
	if cfg == nil || cfg.Driver == config.RegistryDriverLocal {
		return NewLocalRegistry(LocalDir(outputRoot)), nil
	}
	if cfg.Driver == config.RegistryDriverFirestore {
		return NewFirestoreRegistry(ctx, cfg.Firestore)
	}
	return nil, errors.Errorf("不支持的注册表类型 %q", cfg.Driver)
}

// Completed 该键是否已有完成的运行
func Completed(ctx context.Context, r Registry, key string) (*model.RunRecord, bool, error) {
	rec, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil && rec.Status == model.RunCompleted, nil
}

// SaveRun 保存运行记录。同一键已有其他运行完成时，未完成的新记录不覆盖它
func SaveRun(ctx context.Context, r Registry, rec *model.RunRecord) error {
	if rec.Status != model.RunCompleted {
		prev, done, err := Completed(ctx, r, rec.Key)
		if err != nil {
			return err
		}
		if done && prev.ID != rec.ID {
			return nil
		}
	}
	return r.Save(ctx, rec)
}
