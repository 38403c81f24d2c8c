package config

import "github.com/pkg/errors"

type ResultsConfig struct {
	DuckDB *DuckDBConfig `json:"duckdb" yaml:"duckdb"`
	MySQL  *MySQLConfig  `json:"mysql" yaml:"mysql"`
}

type DuckDBConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"` // 相对运行目录，为空则不写 duckdb
}

type MySQLConfig struct {
	DSN         string   `json:"dsn" yaml:"dsn"`           // 为空则不发布
	Replicas    []string `json:"replicas" yaml:"replicas"` // 只读副本
	TablePrefix string   `json:"table_prefix" yaml:"table_prefix"`
}

func (r *ResultsConfig) Validate() []error {
	var errs = make([]error, 0)
	if r.MySQL != nil && r.MySQL.DSN == "" && len(r.MySQL.Replicas) > 0 {
		errs = append(errs, errors.Errorf("results.mysql.replicas 需要同时设置 results.mysql.dsn"))
	}
	return errs
}

func NewDefaultResultsConfig() *ResultsConfig {
	return &ResultsConfig{
		DuckDB: &DuckDBConfig{DBPath: "results.duckdb"},
		MySQL:  &MySQLConfig{Replicas: []string{}, TablePrefix: "bench_"},
	}
}
