package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type IConfig interface {
	Validate() []error
}

// Sections 可以通过命令行 key=value 覆盖的顶层配置节
var Sections = []string{"paths", "steps", "convert", "answer", "judge", "llm", "storage", "results", "registry", "sweeper", "log"}

// 兼容的环境变量名
var envBindings = map[string]string{
	"llm.workers":              "LITELLM_WORKERS",
	"llm.retries":              "LITELLM_RETRIES",
	"llm.cache.redis.password": "REDIS_PASSWORD",
	"results.mysql.dsn":        "MYSQL_DSN",
}

type GlobalConfig struct {
	Paths    *PathsConfig    `json:"paths" yaml:"paths"`
	Steps    *StepsConfig    `json:"steps" yaml:"steps"`
	Convert  *ConvertConfig  `json:"convert" yaml:"convert"`
	Answer   *AnswerConfig   `json:"answer" yaml:"answer"`
	Judge    *JudgeConfig    `json:"judge" yaml:"judge"`
	LLM      *LLMConfig      `json:"llm" yaml:"llm"`
	Storage  *StorageConfig  `json:"storage" yaml:"storage"`
	Results  *ResultsConfig  `json:"results" yaml:"results"`
	Registry *RegistryConfig `json:"registry" yaml:"registry"`
	Sweeper  *SweeperConfig  `json:"sweeper" yaml:"sweeper"`
	Log      *LogConfig      `json:"log" yaml:"log"`
}

func (g *GlobalConfig) sections() []IConfig {
	out := []IConfig{g.Paths, g.Steps, g.Convert, g.Answer, g.Judge, g.LLM}
	if g.Storage != nil {
		out = append(out, g.Storage)
	}
	if g.Results != nil {
		out = append(out, g.Results)
	}
	if g.Registry != nil {
		out = append(out, g.Registry)
	}
	if g.Sweeper != nil {
		out = append(out, g.Sweeper)
	}
	if g.Log != nil {
		out = append(out, g.Log)
	}
	return out
}

func (g *GlobalConfig) Validate() []error {
	var errs = make([]error, 0)
	if g.Paths == nil || g.Steps == nil || g.Convert == nil || g.Answer == nil || g.Judge == nil || g.LLM == nil {
		errs = append(errs, errors.Errorf("paths/steps/convert/answer/judge/llm 配置节不能为空"))
		return errs
	}
	for _, c := range g.sections() {
		if es := c.Validate(); len(es) > 0 {
			errs = append(errs, es...)
		}
	}
	return errs
}

func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Paths:    NewDefaultPathsConfig(),
		Steps:    NewDefaultStepsConfig(),
		Convert:  NewDefaultConvertConfig(),
		Answer:   NewDefaultAnswerConfig(),
		Judge:    NewDefaultJudgeConfig(),
		LLM:      NewDefaultLLMConfig(),
		Storage:  NewDefaultStorageConfig(),
		Results:  NewDefaultResultsConfig(),
		Registry: NewDefaultRegistryConfig(),
		Sweeper:  NewDefaultSweeperConfig(),
		Log:      NewDefaultLogConfig(),
	}
}

// TryLoadFromDisk 读取配置文件并应用命令行覆盖项，覆盖项优先级最高
func TryLoadFromDisk(configFilePath string, overrides []Override) (*GlobalConfig, error) {
	_, err := os.Stat(configFilePath)
	if err != nil {
		return nil, err
	}
	dir, file := filepath.Split(configFilePath)
	fileType := filepath.Ext(file)
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(strings.TrimSuffix(file, fileType))
	v.SetConfigType(strings.TrimPrefix(fileType, "."))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	if err := v.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
		return nil, errors.Errorf("解析配置文件错误:%s", err.Error())
	}
	for _, o := range overrides {
		v.Set(o.Key, o.Value)
	}
	cfg := NewDefaultGlobalConfig()
	if err := v.Unmarshal(cfg, func(config *mapstructure.DecoderConfig) {
		config.TagName = strings.TrimPrefix(fileType, ".")
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
