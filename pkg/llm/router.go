package llm

import (
	"context"

	"meet-your-new-client/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Router 按 model_list 把短模型名交给对应的 provider
type Router struct {
	registry *Registry
	routing  string
	proxy    Completer
	vertex   Completer
	ollama   Completer
}

func NewRouter(registry *Registry, routing string, proxy, vertex, ollama Completer) *Router {
	return &Router{registry: registry, routing: routing, proxy: proxy, vertex: vertex, ollama: ollama}
}

// Resolve 返回实际使用的 provider 和模型名
func (r *Router) Resolve(name string) (Completer, string, error) {
	full, err := r.registry.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	if r.routing == config.RoutingProxy {
		return r.proxy, name, nil
	}
	provider, model := SplitProvider(full)
	switch provider {
	case "vertex_ai":
		if r.vertex == nil {
			return nil, "", errors.Wrapf(ErrBadRequest, "模型 %s 需要 Vertex AI，但未配置 llm.vertex.project_id", name)
		}
		return r.vertex, model, nil
	case "ollama", "ollama_chat":
		if r.ollama == nil {
			return nil, "", errors.Wrapf(ErrBadRequest, "模型 %s 需要 ollama，但未配置 llm.ollama_host", name)
		}
		return r.ollama, model, nil
	case "openai":
		return r.proxy, model, nil
	default:
		return r.proxy, full, nil
	}
}

func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	c, model, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	routed := *req
	routed.Model = model
	zap.S().Debugf("模型 %s 路由到 %s", req.Model, model)
	return c.Complete(ctx, &routed)
}
