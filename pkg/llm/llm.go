package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrBadRequest 请求本身有问题，重试没有意义
	ErrBadRequest = errors.New("bad request")
	ErrCacheMiss  = errors.New("cache miss")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 一次对话补全请求，Model 为 model_list 中的短名称
type Request struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"` // nil 表示不传
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Tools       []api.Tool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"` // 强制调用的函数名
	Timeout     time.Duration `json:"-"`
}

type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // 原始 JSON 字符串，可能不完整
}

type Response struct {
	Content          string        `json:"content"`
	ToolCalls        []ToolCall    `json:"tool_calls,omitempty"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Cached           bool          `json:"-"`
	Latency          time.Duration `json:"-"`
}

// Completer 提交提示词并取回补全结果
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type CompleterFunc func(ctx context.Context, req *Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

type Option func(*Request)

func WithTemperature(t float64) Option {
	return func(r *Request) { r.Temperature = &t }
}

func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

func WithSystemPrompt(prompt string) Option {
	return func(r *Request) {
		r.Messages = append([]Message{{Role: RoleSystem, Content: prompt}}, r.Messages...)
	}
}

func WithTools(tools ...api.Tool) Option {
	return func(r *Request) { r.Tools = append(r.Tools, tools...) }
}

// WithToolChoice 强制模型调用指定函数
func WithToolChoice(name string) Option {
	return func(r *Request) { r.ToolChoice = name }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Request) { r.Timeout = d }
}

// NewRequest 构造单轮用户消息请求
func NewRequest(model, prompt string, opts ...Option) *Request {
	r := &Request{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StatusError 上游返回的非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Unwrap 4xx（408、429 除外）视为 ErrBadRequest
func (e *StatusError) Unwrap() error {
	if isBadRequestStatus(e.Code) {
		return ErrBadRequest
	}
	return nil
}

func isBadRequestStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// ToolBuilder 构造函数调用工具定义
type ToolBuilder struct {
	tool api.Tool
}

func NewToolBuilder(name, description string) *ToolBuilder {
	b := &ToolBuilder{tool: api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        name,
			Description: description,
		},
	}}
	b.tool.Function.Parameters.Type = "object"
	b.tool.Function.Parameters.Properties = make(map[string]api.ToolProperty, 4)
	b.tool.Function.Parameters.Required = []string{}
	return b
}

func (b *ToolBuilder) Param(name, typ, description string, required bool) *ToolBuilder {
	b.tool.Function.Parameters.Properties[name] = api.ToolProperty{
		Type:        api.PropertyType{typ},
		Description: description,
	}
	if required {
		b.tool.Function.Parameters.Required = append(b.tool.Function.Parameters.Required, name)
	}
	return b
}

func (b *ToolBuilder) Build() api.Tool {
	return b.tool
}
