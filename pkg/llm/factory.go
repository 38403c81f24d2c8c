package llm

import (
	"context"
	"os"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client 组装好的补全链路：缓存 -> 重试 -> 路由
type Client struct {
	Completer
	Router *Router
	cached *CachedCompleter
	closer []func() error
}

// NewClient 按配置组装补全链路，models 中的模型名在这里解析，无法路由时直接返回错误
func NewClient(ctx context.Context, cfg *config.LLMConfig, models ...string) (*Client, error) {
	registry, err := LoadRegistry(cfg.ModelsFile)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" && cfg.Routing == config.RoutingProxy {
		zap.S().Warnf("环境变量 %s 为空，请求将不带鉴权", cfg.APIKeyEnv)
	}
	proxy := NewOpenAIClient(cfg.BaseURL, apiKey)

	c := &Client{}
	var vertex, ollama Completer
	if cfg.Routing == config.RoutingDirect {
		if cfg.Vertex != nil && cfg.Vertex.ProjectID != "" {
			vc, err := NewVertexClient(ctx, cfg.Vertex.ProjectID, cfg.Vertex.Region)
			if err != nil {
				return nil, err
			}
			vertex = vc
			c.closer = append(c.closer, vc.Close)
		}
		if cfg.OllamaHost != "" {
			oc, err := NewOllamaClient(cfg.OllamaHost)
			if err != nil {
				return nil, err
			}
			ollama = oc
		}
	}
	c.Router = NewRouter(registry, cfg.Routing, proxy, vertex, ollama)
	for _, m := range models {
		if _, _, err := c.Router.Resolve(m); err != nil {
			_ = c.Close()
			return nil, errors.Wrap(err, "模型配置错误")
		}
	}

	var next Completer = NewRetryingCompleter(c.Router, cfg.Retries)
	cache, err := NewCache(cfg.Cache)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "初始化模型缓存失败")
	}
	if cache != nil {
		c.cached = NewCachedCompleter(next, cache)
		c.closer = append(c.closer, cache.Close)
		next = c.cached
	}
	c.Completer = next
	return c, nil
}

// CacheStats 缓存命中统计，未启用缓存时为 0
func (c *Client) CacheStats() (hits, misses int64) {
	if c.cached == nil {
		return 0, 0
	}
	return c.cached.Stats()
}

func (c *Client) Close() error {
	var first error
	for _, fn := range c.closer {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
