package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
)

// OllamaClient 本地 ollama 模型，不支持强制 tool_choice
type OllamaClient struct {
	client *api.Client
}

func NewOllamaClient(host string) (*OllamaClient, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrapf(err, "ollama 地址非法 %q", host)
	}
	return &OllamaClient{client: api.NewClient(u, http.DefaultClient)}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:   req.Model,
		Stream:  &stream,
		Tools:   req.Tools,
		Options: map[string]interface{}{},
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, api.Message{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	var final api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final.Message.Content += resp.Message.Content
		final.Message.ToolCalls = append(final.Message.ToolCalls, resp.Message.ToolCalls...)
		if resp.Done {
			final.Model = resp.Model
			final.Metrics = resp.Metrics
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, &StatusError{Code: statusErr.StatusCode, Body: statusErr.ErrorMessage}
		}
		return nil, errors.Wrap(err, "调用 ollama 失败")
	}

	out := &Response{
		Content:          final.Message.Content,
		Model:            final.Model,
		PromptTokens:     final.PromptEvalCount,
		CompletionTokens: final.EvalCount,
		Latency:          time.Since(start),
	}
	for _, tc := range final.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return nil, errors.Wrap(err, "函数调用参数序列化失败")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Arguments: string(args)})
	}
	return out, nil
}
