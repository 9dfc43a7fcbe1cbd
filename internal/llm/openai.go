package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OpenAIProvider talks to the Responses API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAI(baseURL, apiKey, model string) *OpenAIProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, option.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}
}

func (o *OpenAIProvider) DefaultModel() string { return o.model }

func (o *OpenAIProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: openAIInput(req.Messages),
		},
		Tools: openAITools(req.Tools),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	stream := o.client.Responses.NewStreaming(ctx, params)

	var completed *responses.Response
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "response.completed":
			completed = &event.Response
		case "response.incomplete":
			slog.Warn("openai: response truncated", "reason", event.Response.IncompleteDetails.Reason)
			completed = &event.Response
		case "response.failed":
			return nil, fmt.Errorf("response failed: %s", event.Response.Error.Message)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, fmt.Errorf("response stream ended without completion")
	}

	return openAIResponse(completed), nil
}

func openAIInput(msgs []Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleDeveloper))
		case RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(args), tc.ID, tc.Name))
			}
		case RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, m.Content))
		}
	}
	return items
}

func openAITools(defs []ToolDefinition) []responses.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]responses.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  d.Parameters,
				Strict:      openai.Bool(false),
			},
		})
	}
	return tools
}

func openAIResponse(resp *responses.Response) *Response {
	out := &Response{
		Model:        string(resp.Model),
		FinishReason: string(resp.Status),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, item := range resp.Output {
		switch item.Type {
		case "function_call":
			fc := item.AsFunctionCall()
			args := map[string]any{}
			if fc.Arguments != "" {
				if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
					slog.Warn("openai: malformed tool arguments", "name", fc.Name, "error", err)
					args = map[string]any{}
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.CallID, Name: fc.Name, Arguments: args})
		case "message":
			for _, c := range item.AsMessage().Content {
				if c.Type == "output_text" {
					out.Content += c.AsOutputText().Text
				}
			}
		}
	}
	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = "tool_calls"
	case resp.Status == "incomplete":
		out.FinishReason = "length"
	}
	return out
}
