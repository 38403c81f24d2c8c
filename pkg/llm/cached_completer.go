package llm

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CachedCompleter 相同请求直接返回缓存的响应，不再调用下游
type CachedCompleter struct {
	next   Completer
	cache  Cache
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedCompleter(next Completer, cache Cache) *CachedCompleter {
	return &CachedCompleter{next: next, cache: cache}
}

// CacheKey 请求中影响结果的字段的 sha256
func CacheKey(req *Request) (string, error) {
	return util.SHA256JSON(struct {
		Model       string      `json:"model"`
		Messages    []Message   `json:"messages"`
		Temperature *float64    `json:"temperature"`
		MaxTokens   int         `json:"max_tokens"`
		Tools       interface{} `json:"tools"`
		ToolChoice  string      `json:"tool_choice"`
	}{req.Model, req.Messages, req.Temperature, req.MaxTokens, req.Tools, req.ToolChoice})
}

func (c *CachedCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	key, err := CacheKey(req)
	if err != nil {
		return nil, errors.Wrap(err, "计算缓存键失败")
	}

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var resp Response
		if jerr := json.Unmarshal(data, &resp); jerr == nil {
			c.hits.Add(1)
			resp.Cached = true
			return &resp, nil
		}
		zap.S().Warnf("缓存内容损坏，重新请求 %s", key)
	case !errors.Is(err, ErrCacheMiss):
		zap.S().Warnf("读取模型缓存失败: %v", err)
	}

	c.misses.Add(1)
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(resp); err == nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			zap.S().Warnf("写入模型缓存失败: %v", err)
		}
	}
	return resp, nil
}

// Stats 命中与未命中次数
func (c *CachedCompleter) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
