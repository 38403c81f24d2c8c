package service

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/registry"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ExpandSweep 生成全部参数组合。命令行中带逗号的覆盖项也作为扫描维度，
// 不带逗号的覆盖项固定在每个组合中并替换同名的扫描维度
func ExpandSweep(params []config.SweepParam, overrides []config.Override) [][]config.Override {
	dims := make(map[string][]string, len(params))
	for _, p := range params {
		dims[p.Key] = p.Values
	}
	fixed := make([]config.Override, 0, len(overrides))
	for _, o := range overrides {
		if values := config.SplitValues(o.Raw); len(values) > 1 {
			dims[o.Key] = values
			continue
		}
		delete(dims, o.Key)
		fixed = append(fixed, o)
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := [][]config.Override{{}}
	for _, k := range keys {
		next := make([][]config.Override, 0, len(combos)*len(dims[k]))
		for _, c := range combos {
			for _, v := range dims[k] {
				combo := append(append([]config.Override(nil), c...), config.Override{Key: k, Value: config.ParseValue(v), Raw: v})
				next = append(next, combo)
			}
		}
		combos = next
	}
	out := make([][]config.Override, 0, len(combos))
	for _, c := range combos {
		out = append(out, append(append([]config.Override(nil), fixed...), c...))
	}
	return out
}

// SweepDir <output_root>/multirun/<日期>/<时间>
func SweepDir(outputRoot string, now time.Time) string {
	return filepath.Join(outputRoot, "multirun", now.Format("2006-01-02"), now.Format("15-04-05"))
}

type SweepService struct {
	configPath string
	overrides  []config.Override

	// Prepare 在每个组合运行前调用，测试中用来替换 backend 和模型
	Prepare func(p *Pipeline)
	now     func() time.Time
}

func NewSweepService(configPath string, overrides []config.Override) *SweepService {
	return &SweepService{configPath: configPath, overrides: overrides, now: time.Now}
}

// Run 依次运行每个组合，单个组合失败不影响后续组合；有失败时返回错误
func (s *SweepService) Run(ctx context.Context) ([]*model.RunRecord, error) {
	fixed := make([]config.Override, 0, len(s.overrides))
	for _, o := range s.overrides {
		if len(config.SplitValues(o.Raw)) <= 1 {
			fixed = append(fixed, o)
		}
	}
	base, err := LoadConfig(s.configPath, fixed)
	if err != nil {
		return nil, err
	}
	params, err := base.Sweeper.Flatten()
	if err != nil {
		return nil, err
	}
	combos := ExpandSweep(params, s.overrides)
	sweepDir := SweepDir(base.Paths.OutputRoot, s.now())
	zap.S().Infof("扫描 %d 个组合，输出到 %s", len(combos), sweepDir)

	reg, err := registry.NewRegistry(ctx, base.Registry, base.Paths.OutputRoot)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	records := make([]*model.RunRecord, 0, len(combos))
	// 跳过的组合沿用之前运行的目录参与汇总
	dirs := []string{sweepDir}
	failed := 0
	for i, combo := range combos {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		desc := make([]string, 0, len(combo))
		for _, o := range combo {
			desc = append(desc, o.String())
		}
		zap.S().Infof("[%d/%d] %s", i+1, len(combos), strings.Join(desc, " "))

		cfg, err := LoadConfig(s.configPath, combo)
		if err != nil {
			failed++
			zap.S().Errorf("组合 %d 配置错误: %v", i, err)
			continue
		}
		p := NewPipeline(cfg, combo, reg)
		p.SkipCompleted = cfg.Sweeper.SkipCompleted
		if s.Prepare != nil {
			s.Prepare(p)
		}
		rec, err := p.Run(ctx, filepath.Join(sweepDir, strconv.Itoa(i)))
		if rec != nil {
			records = append(records, rec)
			if rec.Status == model.RunSkipped && rec.RunDir != "" {
				dirs = append(dirs, rec.RunDir)
			}
		}
		if err != nil {
			failed++
			zap.S().Errorf("组合 %d 失败: %v", i, err)
		}
	}

	if base.Steps.Aggregate {
		if _, err := NewAggregateService(base).Run(ctx, sweepDir, dirs); err != nil {
			return records, errors.Wrap(err, "汇总扫描结果失败")
		}
	}
	if failed > 0 {
		return records, errors.Errorf("%d/%d 个组合失败", failed, len(combos))
	}
	return records, nil
}

// LoadConfig 读取配置文件、应用覆盖项并校验
func LoadConfig(path string, overrides []config.Override) (*config.GlobalConfig, error) {
	cfg, err := config.TryLoadFromDisk(path, overrides)
	if err != nil {
		return nil, errors.Wrapf(err, "读取配置文件错误 %s", path)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Wrap(joinErrors(errs), "配置验证错误")
	}
	return cfg, nil
}

func joinErrors(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
