package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	RoutingProxy  = "proxy"  // 把短模型名交给 litellm 代理
	RoutingDirect = "direct" // 按 model_list 解析后的名称直连各 provider

	CacheDriverNone  = "none"
	CacheDriverFile  = "file"
	CacheDriverRedis = "redis"
)

type LLMConfig struct {
	BaseURL    string          `json:"base_url" yaml:"base_url"`
	APIKeyEnv  string          `json:"api_key_env" yaml:"api_key_env"`
	Routing    string          `json:"routing" yaml:"routing"`
	ModelsFile string          `json:"models_file" yaml:"models_file"`
	Workers    int             `json:"workers" yaml:"workers"`
	Retries    int             `json:"retries" yaml:"retries"`
	Timeout    time.Duration   `json:"timeout" yaml:"timeout"`
	OllamaHost string          `json:"ollama_host" yaml:"ollama_host"`
	Vertex     *VertexConfig   `json:"vertex" yaml:"vertex"`
	Cache      *LLMCacheConfig `json:"cache" yaml:"cache"`
}

type VertexConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Region    string `json:"region" yaml:"region"`
}

type LLMCacheConfig struct {
	Driver string        `json:"driver" yaml:"driver"`
	Dir    string        `json:"dir" yaml:"dir"`
	TTL    time.Duration `json:"ttl" yaml:"ttl"` // redis 过期时间，0 表示不过期
	Redis  *RedisConfig  `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

func (l *LLMConfig) Validate() []error {
	var errs = make([]error, 0)
	if l.Routing != RoutingProxy && l.Routing != RoutingDirect {
		errs = append(errs, errors.Errorf("llm.routing 不支持: %q", l.Routing))
	}
	if l.Routing == RoutingProxy && l.BaseURL == "" {
		errs = append(errs, errors.Errorf("llm.base_url 不能为空"))
	}
	if l.Workers <= 0 {
		errs = append(errs, errors.Errorf("llm.workers 必须大于 0"))
	}
	if l.Retries < 0 {
		errs = append(errs, errors.Errorf("llm.retries 不能小于 0"))
	}
	if l.Timeout <= 0 {
		errs = append(errs, errors.Errorf("llm.timeout 必须大于 0"))
	}
	if l.Cache != nil {
		switch l.Cache.Driver {
		case CacheDriverNone:
		case CacheDriverFile:
			if l.Cache.Dir == "" {
				errs = append(errs, errors.Errorf("llm.cache.dir 不能为空"))
			}
		case CacheDriverRedis:
			if l.Cache.Redis == nil || l.Cache.Redis.Addr == "" {
				errs = append(errs, errors.Errorf("llm.cache.redis.addr 不能为空"))
			}
		default:
			errs = append(errs, errors.Errorf("llm.cache.driver 不支持: %q", l.Cache.Driver))
		}
	}
	return errs
}

func NewDefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:    "http://0.0.0.0:4000",
		APIKeyEnv:  "LITELLM_API_KEY",
		Routing:    RoutingProxy,
		ModelsFile: "etc/litellm_config.yaml",
		Workers:    4,
		Retries:    5,
		Timeout:    300 * time.Second,
		OllamaHost: "http://127.0.0.1:11434",
		Vertex:     &VertexConfig{Region: "us-central1"},
		Cache: &LLMCacheConfig{
			Driver: CacheDriverFile,
			Dir:    "cache/llm",
			Redis: &RedisConfig{
				Addr:     "127.0.0.1:6379",
				PoolSize: 10,
				Prefix:   "mync:llm:",
			},
		},
	}
}
