package logger

import (
	"os"
	"path/filepath"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LogFileName = "run.log"

// Init 初始化全局 logger：stderr 按配置格式输出，runDir 不为空时同时写 JSON 到 <runDir>/run.log。
// 返回的函数用于刷新并关闭日志文件。
func Init(cfg *config.LogConfig, runDir string) (func(), error) {
	if cfg == nil {
		cfg = config.NewDefaultLogConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "日志级别非法 %q", cfg.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var consoleEnc zapcore.Encoder
	if cfg.Format == "json" {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level)}

	var file *os.File
	if runDir != "" {
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "创建运行目录失败 %s", runDir)
		}
		file, err = os.OpenFile(filepath.Join(runDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "打开日志文件失败")
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	restore := zap.ReplaceGlobals(l)
	return func() {
		_ = l.Sync()
		restore()
		if file != nil {
			_ = file.Close()
		}
	}, nil
}
