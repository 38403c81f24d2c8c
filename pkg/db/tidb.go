package db

import (
	"sync"
	"time"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

var tidb *gorm.DB
var tidbOnce sync.Once

// InitTiDB 初始化发布汇总结果的 MySQL/TiDB 连接，配置了副本时读走副本
func InitTiDB(cfg *config.MySQLConfig) error {
	var err error
	tidbOnce.Do(func() {
		defer func() {
			if err != nil {
				tidb = nil
			}
		}()
		if cfg == nil || cfg.DSN == "" {
			err = errors.New("results.mysql.dsn 为空")
			return
		}
		tidb, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			zap.S().Errorf("连接 mysql 失败: %v", err)
			return
		}
		if len(cfg.Replicas) > 0 {
			replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
			for _, dsn := range cfg.Replicas {
				replicas = append(replicas, mysql.Open(dsn))
			}
			err = tidb.Use(dbresolver.Register(dbresolver.Config{
				Replicas: replicas,
				Policy:   dbresolver.RandomPolicy{},
			}).SetConnMaxLifetime(time.Hour).SetMaxOpenConns(10))
			if err != nil {
				zap.S().Errorf("注册 mysql 副本失败: %v", err)
				return
			}
		}

		sqlDB, e := tidb.DB()
		if e != nil {
			err = e
			return
		}
		if err = sqlDB.Ping(); err != nil {
			zap.S().Errorf("mysql 连接测试失败: %v", err)
			return
		}
		zap.S().Debug("mysql 初始化完成...")
	})
	if err == nil && tidb == nil {
		err = errors.New("mysql 连接未初始化")
	}
	return err
}

// GetTiDB 获取 TiDB 连接
func GetTiDB() *gorm.DB {
	return tidb
}
