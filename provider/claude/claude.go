// Package claude adapts the Anthropic messages API to the agent's LLMClient
// interface. Tool calls round-trip as tool_use blocks on assistant turns and
// tool_result blocks on the following user turn.
package claude

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/nl2sql/agent"
	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Provider implements the LLMClient interface for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, errors.New(errors.KindInvalidArguments, "generate request cannot be nil")
	}

	systemText, conversation, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  conversation,
		MaxTokens: p.config.MaxTokens,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	if len(req.Tools) > 0 {
		claudeTools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = claudeTools
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(errors.KindModelUnavailable, err, "claude api error")
	}

	var responseText string
	toolCalls := make([]message.ToolCall, 0)
	for _, content := range apiMessage.Content {
		switch content.Type {
		case "text":
			responseText += content.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(content.Input, &args); err != nil {
				return nil, errors.Wrap(errors.KindMalformedModelResponse, err,
					"failed to parse tool input")
			}
			toolCalls = append(toolCalls, message.ToolCall{
				ID:   content.ID,
				Name: content.Name,
				Args: args,
			})
		}
	}

	responseMsg := message.NewMessage(message.RoleAssistant, responseText)
	if len(toolCalls) > 0 {
		responseMsg.ToolCalls = toolCalls
	}
	return &agent.GenerateResponse{Message: responseMsg}, nil
}

// encodeMessages splits out the system prompt and converts the conversation.
// Assistant tool calls become tool_use blocks; tool results become
// tool_result blocks inside a user turn, as the messages API requires.
func encodeMessages(msgs []*message.Message) (string, []anthropic.MessageParam, error) {
	var systemText string
	conversation := make([]anthropic.MessageParam, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			if systemText != "" {
				systemText += "\n"
			}
			systemText += msg.Content

		case message.RoleUser:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case message.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = make(map[string]any)
				}
				raw, err := json.Marshal(args)
				if err != nil {
					return "", nil, errors.Wrap(errors.KindInternal, err, "failed to encode tool input")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(raw), tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))

		case message.RoleTool:
			conversation = append(conversation, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolID, msg.Content, msg.IsError)))
		}
	}

	return systemText, conversation, nil
}

func encodeTools(tools []map[string]any) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		toolParam := anthropic.ToolParam{}
		if name, ok := fn["name"].(string); ok {
			toolParam.Name = name
		}
		if desc, ok := fn["description"].(string); ok {
			toolParam.Description = param.NewOpt(desc)
		}
		if parameters, ok := fn["parameters"].(map[string]any); ok {
			schema := anthropic.ToolInputSchemaParam{}
			if props, ok := parameters["properties"].(map[string]any); ok {
				schema.Properties = props
			}
			if required, ok := parameters["required"].([]string); ok {
				schema.Required = required
			}
			toolParam.InputSchema = schema
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out, nil
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
