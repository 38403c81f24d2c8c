package config

import (
	"time"

	"github.com/pkg/errors"
)

// 支持的转换库
const (
	LibDocling    = "docling"
	LibMarkitdown = "markitdown"
	LibZerox      = "zerox"
	LibMarker     = "marker"
	LibGemini     = "gemini"
)

var ConversionLibs = []string{LibDocling, LibMarkitdown, LibZerox, LibMarker, LibGemini}

type ConvertConfig struct {
	Lib                 string            `json:"lib" yaml:"lib"`                                     // 转换库
	Model               string            `json:"model" yaml:"model"`                                 // 图片描述/视觉模型，为空表示不用模型
	ImgPrompt           string            `json:"img_prompt" yaml:"img_prompt"`                       // 图片描述提示词
	Temperature         float64           `json:"temperature" yaml:"temperature"`                     // 0 ~ 2
	Suffix              string            `json:"suffix" yaml:"suffix"`                               // 只转换该后缀的文件
	SampleFirstN        int               `json:"sample_first_n" yaml:"sample_first_n"`               // <=0 表示全部
	TargetFiles         []string          `json:"target_files" yaml:"target_files"`                   // 指定文件名，优先于 sample_first_n
	ReadCache           bool              `json:"read_cache" yaml:"read_cache"`                       // 读取转换缓存
	WriteCache          bool              `json:"write_cache" yaml:"write_cache"`                     // 写入转换缓存
	RetryCachedFailures bool              `json:"retry_cached_failures" yaml:"retry_cached_failures"` // 缓存中的失败结果重新转换
	MaxContainers       int               `json:"max_containers" yaml:"max_containers"`               // 并行转换数
	Timeout             time.Duration     `json:"timeout" yaml:"timeout"`                             // 单个文档超时
	HealthTimeout       time.Duration     `json:"health_timeout" yaml:"health_timeout"`               // 等待远程 worker 就绪
	Workers             map[string]string `json:"workers" yaml:"workers"`                             // lib -> 远程 worker 地址
	Gemini              *GeminiConfig     `json:"gemini" yaml:"gemini"`
}

type GeminiConfig struct {
	ProjectID   string `json:"project_id" yaml:"project_id"`
	Region      string `json:"region" yaml:"region"`
	Model       string `json:"model" yaml:"model"`
	PageWorkers int    `json:"page_workers" yaml:"page_workers"`
}

func (c *ConvertConfig) Validate() []error {
	var errs = make([]error, 0)
	if !contains(ConversionLibs, c.Lib) {
		errs = append(errs, errors.Errorf("convert.lib 不支持: %q", c.Lib))
		return errs
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.Errorf("convert.temperature 非法: %v", c.Temperature))
	}
	if c.ImgPrompt == "" {
		errs = append(errs, errors.Errorf("convert.img_prompt 不能为空"))
	}
	if c.MaxContainers <= 0 {
		errs = append(errs, errors.Errorf("convert.max_containers 必须大于 0"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.Errorf("convert.timeout 必须大于 0"))
	}
	switch c.Lib {
	case LibDocling, LibZerox, LibMarker:
		if c.Model == "" {
			errs = append(errs, errors.Errorf("convert.lib=%s 需要设置 convert.model", c.Lib))
		}
	case LibGemini:
		if c.Gemini == nil || c.Gemini.ProjectID == "" || c.Gemini.Region == "" || c.Gemini.Model == "" {
			errs = append(errs, errors.Errorf("convert.lib=gemini 需要设置 convert.gemini.project_id/region/model"))
		} else if c.Gemini.PageWorkers <= 0 {
			errs = append(errs, errors.Errorf("convert.gemini.page_workers 必须大于 0"))
		}
	}
	return errs
}

// ModelOrNone 缓存键与日志中使用的模型名
func (c *ConvertConfig) ModelOrNone() string {
	if c.Lib == LibGemini && c.Gemini != nil {
		return c.Gemini.Model
	}
	if c.Model == "" {
		return "no_model"
	}
	return c.Model
}

func NewDefaultConvertConfig() *ConvertConfig {
	return &ConvertConfig{
		Lib:           LibMarkitdown,
		ImgPrompt:     DefaultImgPrompt,
		MaxContainers: 10,
		Timeout:       30 * time.Minute,
		HealthTimeout: 30 * time.Second,
		TargetFiles:   []string{},
		Workers:       map[string]string{},
		Gemini: &GeminiConfig{
			Region:      "us-central1",
			Model:       "gemini-2.5-flash",
			PageWorkers: 8,
		},
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
