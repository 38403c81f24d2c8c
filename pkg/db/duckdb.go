package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OpenDuckDB 打开（或创建）汇总用的 duckdb 文件，每个运行目录一个
func OpenDuckDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "创建 duckdb 目录失败")
	}
	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		zap.S().Errorf("连接 duckdb 失败: %v", err)
		return nil, err
	}

	// 测试连接
	if err = conn.PingContext(ctx); err != nil {
		zap.S().Errorf("duckdb 连接测试失败: %v", err)
		_ = conn.Close()
		return nil, err
	}

	zap.S().Debugf("duckdb 初始化完成 %s", dbPath)
	return conn, nil
}
