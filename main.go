package main

import (
	"os"

	"meet-your-new-client/cmd"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		zap.S().Warnf("加载 .env 失败: %v", err)
	}

	if err := cmd.NewRootCommand().Execute(); err != nil {
		zap.S().Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
