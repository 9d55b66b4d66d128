// Package gemini adapts the Google Gemini API to the agent's LLMClient
// interface using the official generative-ai-go SDK with function calling.
package gemini

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/nl2sql/agent"
	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements the LLMClient interface for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, errors.New(errors.KindInvalidArguments, "gemini api key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, errors.Wrap(errors.KindModelUnavailable, err, "failed to create gemini client")
	}

	return &Provider{
		config: config,
		client: client,
	}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, errors.New(errors.KindInvalidArguments, "generate request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New(errors.KindInvalidArguments, "no messages to send")
	}

	model := p.client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if len(req.Tools) > 0 {
		model.Tools = encodeTools(req.Tools)
	}

	system, history, last := encodeMessages(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return nil, errors.Wrap(errors.KindModelUnavailable, err, "gemini api error")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New(errors.KindMalformedModelResponse, "no candidates in gemini response")
	}

	var responseText string
	var toolCalls []message.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseText += string(v)
		case genai.FunctionCall:
			// Gemini correlates function responses by name, not by call ID,
			// so the name doubles as the correlation ID.
			toolCalls = append(toolCalls, message.ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: v.Args,
			})
		}
	}

	responseMsg := message.NewMessage(message.RoleAssistant, responseText)
	if len(toolCalls) > 0 {
		responseMsg.ToolCalls = toolCalls
	}
	return &agent.GenerateResponse{Message: responseMsg}, nil
}

// encodeMessages splits the conversation into the system instruction, chat
// history and the parts of the final turn to send.
func encodeMessages(msgs []*message.Message) (string, []*genai.Content, []genai.Part) {
	var system string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += msg.Content

		case message.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case message.RoleAssistant:
			parts := make([]genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})

		case message.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name: msg.ToolID,
					Response: map[string]any{
						"content":  msg.Content,
						"is_error": msg.IsError,
					},
				}},
			})
		}
	}

	if len(contents) == 0 {
		return system, nil, []genai.Part{genai.Text("")}
	}
	last := contents[len(contents)-1]
	return system, contents[:len(contents)-1], last.Parts
}

func encodeTools(tools []map[string]any) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		decl := &genai.FunctionDeclaration{}
		if name, ok := fn["name"].(string); ok {
			decl.Name = name
		}
		if desc, ok := fn["description"].(string); ok {
			decl.Description = desc
		}
		if parameters, ok := fn["parameters"].(map[string]any); ok {
			decl.Parameters = encodeSchema(parameters)
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func encodeSchema(parameters map[string]any) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema),
	}
	if props, ok := parameters["properties"].(map[string]any); ok {
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ps := &genai.Schema{Type: schemaType(prop["type"])}
			if desc, ok := prop["description"].(string); ok {
				ps.Description = desc
			}
			if enum, ok := prop["enum"].([]string); ok {
				ps.Enum = enum
			}
			schema.Properties[name] = ps
		}
	}
	if required, ok := parameters["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

func schemaType(v any) genai.Type {
	t, _ := v.(string)
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
