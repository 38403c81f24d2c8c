package llm

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache 模型响应缓存，未命中返回 ErrCacheMiss
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// NewCache 根据配置创建缓存，driver 为 none 时返回 nil
func NewCache(cfg *config.LLMCacheConfig) (Cache, error) {
	if cfg == nil || cfg.Driver == config.CacheDriverNone {
		return nil, nil
	}
	switch cfg.Driver {
	case config.CacheDriverFile:
		return NewFileCache(cfg.Dir)
	case config.CacheDriverRedis:
		return NewRedisCache(cfg.Redis, cfg.TTL)
	default:
		return nil, errors.Errorf("不支持的缓存类型 %q", cfg.Driver)
	}
}

// FileCache 每个 key 一个 JSON 文件，按 key 前两位分目录
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "创建缓存目录失败 %s", dir)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	if len(key) < 2 {
		return filepath.Join(c.dir, key+".json")
	}
	return filepath.Join(c.dir, key[:2], key+".json")
}

func (c *FileCache) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "读取缓存失败")
	}
	return data, nil
}

func (c *FileCache) Set(_ context.Context, key string, value []byte) error {
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "创建缓存目录失败")
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return errors.Wrap(err, "写入缓存失败")
	}
	return os.Rename(tmp, p)
}

func (c *FileCache) Close() error {
	return nil
}

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(cfg *config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis 地址不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "连接 redis 失败 %s", cfg.Addr)
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
