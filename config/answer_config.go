package config

import (
	"strings"

	"github.com/pkg/errors"
)

type AnswerConfig struct {
	Model          string  `json:"model" yaml:"model"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	Prompt         string  `json:"prompt" yaml:"prompt"`                     // 需包含 {question} 与 {report_content}
	MaxReportChars int     `json:"max_report_chars" yaml:"max_report_chars"` // 提示词中报告内容的字符上限
	SavePrompts    bool    `json:"save_prompts" yaml:"save_prompts"`         // 保存完整提示词
}

func (a *AnswerConfig) Validate() []error {
	var errs = make([]error, 0)
	if a.Model == "" {
		errs = append(errs, errors.Errorf("answer.model 不能为空"))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, errors.Errorf("answer.temperature 非法: %v", a.Temperature))
	}
	if !strings.Contains(a.Prompt, "{report_content}") || !strings.Contains(a.Prompt, "{question}") {
		errs = append(errs, errors.Errorf("answer.prompt 必须包含 {report_content} 和 {question}"))
	}
	if a.MaxReportChars <= 0 {
		errs = append(errs, errors.Errorf("answer.max_report_chars 必须大于 0"))
	}
	return errs
}

func NewDefaultAnswerConfig() *AnswerConfig {
	return &AnswerConfig{
		Model:          "gpt-4.1-mini",
		Prompt:         DefaultAnswerPrompt,
		MaxReportChars: 400000,
	}
}
