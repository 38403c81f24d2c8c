package config

import (
	"strings"

	"github.com/pkg/errors"
)

type JudgeConfig struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Prompt      string  `json:"prompt" yaml:"prompt"` // 需包含 {answer} 与 {ground_truth}
}

func (j *JudgeConfig) Validate() []error {
	var errs = make([]error, 0)
	if j.Model == "" {
		errs = append(errs, errors.Errorf("judge.model 不能为空"))
	}
	if j.Temperature < 0 || j.Temperature > 2 {
		errs = append(errs, errors.Errorf("judge.temperature 非法: %v", j.Temperature))
	}
	if !strings.Contains(j.Prompt, "{answer}") || !strings.Contains(j.Prompt, "{ground_truth}") {
		errs = append(errs, errors.Errorf("judge.prompt 必须包含 {answer} 和 {ground_truth}"))
	}
	return errs
}

func NewDefaultJudgeConfig() *JudgeConfig {
	return &JudgeConfig{
		Model:  "gpt-4.1",
		Prompt: DefaultJudgePrompt,
	}
}
