package config

import (
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // console 或 json
}

func (l *LogConfig) Validate() []error {
	var errs = make([]error, 0)
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		errs = append(errs, errors.Errorf("log.level 非法: %q", l.Level))
	}
	if l.Format != "console" && l.Format != "json" {
		errs = append(errs, errors.Errorf("log.format 不支持: %q", l.Format))
	}
	return errs
}

func NewDefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info", Format: "console"}
}
