package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/convert"
	"meet-your-new-client/pkg/llm"
	"meet-your-new-client/pkg/logger"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/registry"
	"meet-your-new-client/pkg/storage"
	"meet-your-new-client/pkg/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	RunConfigFile = "config.yaml"
	OverridesFile = "overrides.yaml"
)

// BackendFactory 创建转换 backend，测试中替换
type BackendFactory func(ctx context.Context, cfg *config.ConvertConfig, store storage.Store) (convert.Backend, error)

// CompleterFactory 创建补全链路并检查 models 都能路由，返回的 close 函数在运行结束时调用
type CompleterFactory func(ctx context.Context, cfg *config.LLMConfig, models ...string) (llm.Completer, func() error, error)

func defaultCompleterFactory(ctx context.Context, cfg *config.LLMConfig, models ...string) (llm.Completer, func() error, error) {
	client, err := llm.NewClient(ctx, cfg, models...)
	if err != nil {
		return nil, nil, err
	}
	return client, func() error {
		hits, misses := client.CacheStats()
		zap.S().Infof("模型缓存命中 %d, 未命中 %d", hits, misses)
		return client.Close()
	}, nil
}

// Pipeline 一次完整运行：转换 -> 回答 -> 评判 -> 汇总
type Pipeline struct {
	cfg       *config.GlobalConfig
	overrides []config.Override
	registry  registry.Registry

	// SkipCompleted 注册表中同一配置键已完成时跳过
	SkipCompleted bool
	NewBackend    BackendFactory
	NewCompleter  CompleterFactory
	NewStore      func(ctx context.Context, cfg *config.StorageConfig) (storage.Store, error)
	now           func() time.Time
}

func NewPipeline(cfg *config.GlobalConfig, overrides []config.Override, reg registry.Registry) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		overrides:    overrides,
		registry:     reg,
		NewBackend:   convert.NewBackend,
		NewCompleter: defaultCompleterFactory,
		NewStore:     storage.NewStore,
		now:          time.Now,
	}
}

// runKeyConfig 参与运行键计算的配置，不影响结果的字段在 RunKey 中清零
type runKeyConfig struct {
	Paths   config.PathsConfig    `json:"paths"`
	Steps   config.StepsConfig    `json:"steps"`
	Convert config.ConvertConfig  `json:"convert"`
	Answer  config.AnswerConfig   `json:"answer"`
	Judge   config.JudgeConfig    `json:"judge"`
	LLM     config.LLMConfig      `json:"llm"`
	Storage *config.StorageConfig `json:"storage"`
}

// RunKey 完整配置去掉输出位置、并发、超时、缓存开关和日志后的 sha256
func RunKey(cfg *config.GlobalConfig) (string, error) {
	k := runKeyConfig{
		Paths:   config.PathsConfig{ReportsDir: cfg.Paths.ReportsDir, QuestionsFile: cfg.Paths.QuestionsFile},
		Steps:   *cfg.Steps,
		Convert: *cfg.Convert,
		Answer:  *cfg.Answer,
		Judge:   *cfg.Judge,
		LLM:     *cfg.LLM,
		Storage: cfg.Storage,
	}
	k.Steps.Aggregate = false

	k.Convert.ReadCache = false
	k.Convert.WriteCache = false
	k.Convert.RetryCachedFailures = false
	k.Convert.MaxContainers = 0
	k.Convert.Timeout = 0
	k.Convert.HealthTimeout = 0
	k.Convert.Workers = nil
	if cfg.Convert.Gemini != nil {
		g := *cfg.Convert.Gemini
		g.PageWorkers = 0
		k.Convert.Gemini = &g
	}

	k.Answer.SavePrompts = false

	k.LLM.APIKeyEnv = ""
	k.LLM.Workers = 0
	k.LLM.Retries = 0
	k.LLM.Timeout = 0
	k.LLM.Cache = nil
	return util.SHA256JSON(k)
}

// Run runDir 为空时按 paths 生成。跳过时不创建运行目录，返回记录的 RunDir 指向已完成的运行
func (p *Pipeline) Run(ctx context.Context, runDir string) (*model.RunRecord, error) {
	if runDir == "" {
		runDir = p.cfg.Paths.DefaultRunDir(p.now())
	}
	key, err := RunKey(p.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "计算运行键失败")
	}
	rec := &model.RunRecord{
		ID:        uuid.NewString(),
		Key:       key,
		RunDir:    runDir,
		StartedAt: p.now().UTC(),
		Status:    model.RunRunning,
		Overrides: make([]string, 0, len(p.overrides)),
	}
	for _, o := range config.SortOverrides(p.overrides) {
		rec.Overrides = append(rec.Overrides, o.String())
	}

	if p.SkipCompleted && p.registry != nil {
		prev, done, err := registry.Completed(ctx, p.registry, key)
		if err != nil {
			return nil, err
		}
		if done {
			zap.S().Infof("配置 %v 已在 %s 完成，跳过", rec.Overrides, prev.RunDir)
			rec.Status = model.RunSkipped
			rec.RunDir = prev.RunDir
			rec.FinishedAt = p.now().UTC()
			return rec, nil
		}
	}

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "创建运行目录失败 %s", runDir)
	}
	syncLog, err := logger.Init(p.cfg.Log, runDir)
	if err != nil {
		return nil, err
	}
	defer syncLog()

	if err := p.dumpConfig(runDir, rec.Overrides); err != nil {
		return nil, err
	}
	p.save(ctx, rec)
	zap.S().Infof("运行目录 %s (key=%s)", runDir, key[:12])

	runErr := p.runSteps(ctx, runDir)
	rec.FinishedAt = p.now().UTC()
	if runErr != nil {
		rec.Status = model.RunFailed
		rec.Error = runErr.Error()
		zap.S().Errorf("运行失败: %v", runErr)
	} else {
		rec.Status = model.RunCompleted
		zap.S().Infof("运行完成，耗时 %s", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}
	p.save(context.WithoutCancel(ctx), rec)
	return rec, runErr
}

func (p *Pipeline) save(ctx context.Context, rec *model.RunRecord) {
	if p.registry == nil {
		return
	}
	if err := registry.SaveRun(ctx, p.registry, rec); err != nil {
		zap.S().Warnf("保存运行记录失败: %v", err)
	}
}

func (p *Pipeline) dumpConfig(runDir string, overrides []string) error {
	data, err := yaml.Marshal(p.cfg)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}
	if err := os.WriteFile(filepath.Join(runDir, RunConfigFile), data, 0o644); err != nil {
		return errors.Wrap(err, "写入配置失败")
	}
	data, err = yaml.Marshal(overrides)
	if err != nil {
		return errors.Wrap(err, "序列化覆盖项失败")
	}
	return os.WriteFile(filepath.Join(runDir, OverridesFile), data, 0o644)
}

func (p *Pipeline) runSteps(ctx context.Context, runDir string) error {
	steps := p.cfg.Steps
	if steps.Convert {
		if err := p.runConvert(ctx, runDir); err != nil {
			return errors.Wrap(err, "转换阶段失败")
		}
	}

	if steps.Answer || steps.Judge {
		models := make([]string, 0, 2)
		if steps.Answer {
			models = append(models, p.cfg.Answer.Model)
		}
		if steps.Judge {
			models = append(models, p.cfg.Judge.Model)
		}
		completer, closeFn, err := p.NewCompleter(ctx, p.cfg.LLM, models...)
		if err != nil {
			return errors.Wrap(err, "初始化模型客户端失败")
		}
		defer func() {
			if closeFn != nil {
				_ = closeFn()
			}
		}()
		if steps.Answer {
			if _, err := NewAnswerService(p.cfg, completer, runDir).Run(ctx); err != nil {
				return errors.Wrap(err, "回答阶段失败")
			}
		}
		if steps.Judge {
			if _, err := NewJudgeService(p.cfg, completer, runDir).Run(ctx); err != nil {
				return errors.Wrap(err, "评判阶段失败")
			}
		}
	}

	if steps.Aggregate {
		dirs := append([]string{runDir}, p.cfg.Paths.AggregateDirs...)
		if _, err := NewAggregateService(p.cfg).Run(ctx, runDir, dirs); err != nil {
			return errors.Wrap(err, "汇总阶段失败")
		}
	}
	return nil
}

func (p *Pipeline) runConvert(ctx context.Context, runDir string) error {
	store, err := p.NewStore(ctx, p.cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	backend, err := p.NewBackend(ctx, p.cfg.Convert, store)
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	_, err = NewConvertService(p.cfg, store, backend, runDir).Run(ctx)
	return err
}
