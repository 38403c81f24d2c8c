package cmd

import (
	"meet-your-new-client/config"
	"meet-your-new-client/pkg/logger"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/registry"
	"meet-your-new-client/pkg/service"
	"meet-your-new-client/pkg/signals"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type runOptions struct {
	configFilePath string
	multirun       bool
}

func (o *runOptions) run(args []string) error {
	overrides, err := config.ParseOverrides(args)
	if err != nil {
		return err
	}
	ctx := signals.SetupSignalHandler()

	if o.multirun {
		records, err := service.NewSweepService(o.configFilePath, overrides).Run(ctx)
		completed := 0
		for _, r := range records {
			if r.Status == model.RunCompleted || r.Status == model.RunSkipped {
				completed++
			}
		}
		zap.S().Infof("扫描结束: %d 个组合完成或跳过", completed)
		return err
	}

	cfg, err := service.LoadConfig(o.configFilePath, overrides)
	if err != nil {
		return err
	}
	// 运行目录创建前先按配置的级别输出到终端
	syncLog, err := logger.Init(cfg.Log, "")
	if err != nil {
		return err
	}
	defer syncLog()

	reg, err := registry.NewRegistry(ctx, cfg.Registry, cfg.Paths.OutputRoot)
	if err != nil {
		return errors.Wrap(err, "初始化运行注册表失败")
	}
	defer reg.Close()

	rec, err := service.NewPipeline(cfg, overrides, reg).Run(ctx, "")
	if err != nil {
		return err
	}
	zap.S().Infof("结果保存在 %s", rec.RunDir)
	return nil
}
