package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexClient 直连 Vertex AI Gemini
type VertexClient struct {
	client *genai.Client
}

func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("Vertex AI 需要 project_id 和 region")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Vertex AI 客户端失败")
	}
	return &VertexClient{client: client}, nil
}

func (c *VertexClient) Close() error {
	return c.client.Close()
}

func (c *VertexClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := c.client.GenerativeModel(req.Model)
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		model.Tools = convertToolsToGenai(req.Tools)
		if req.ToolChoice != "" {
			model.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode:                 genai.FunctionCallingAny,
					AllowedFunctionNames: []string{req.ToolChoice},
				},
			}
		}
	}

	var history []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 {
		return nil, errors.Wrap(ErrBadRequest, "没有用户消息")
	}

	start := time.Now()
	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return nil, errors.Wrap(ErrBadRequest, err.Error())
		}
		return nil, errors.Wrap(err, "调用 Vertex AI 失败")
	}
	return genaiResponse(resp, req.Model, time.Since(start))
}

func genaiResponse(resp *genai.GenerateContentResponse, modelName string, latency time.Duration) (*Response, error) {
	out := &Response{Model: modelName, Latency: latency}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, errors.Wrap(err, "函数调用参数序列化失败")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: p.Name, Arguments: string(args)})
		}
	}
	out.Content = text.String()
	return out, nil
}

func convertToolsToGenai(tools []api.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(tool.Function.Parameters.Properties)),
			Required:   tool.Function.Parameters.Required,
		}
		for name, prop := range tool.Function.Parameters.Properties {
			typ := ""
			if len(prop.Type) > 0 {
				typ = prop.Type[0]
			}
			params.Properties[name] = &genai.Schema{Type: genaiType(typ), Description: prop.Description}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genaiType(t string) genai.Type {
	switch t {
	case "boolean":
		return genai.TypeBoolean
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
