// Package provider selects an LLM backend by name.
package provider

import (
	"context"

	"github.com/sweetpotato0/nl2sql/agent"
	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/provider/claude"
	"github.com/sweetpotato0/nl2sql/provider/gemini"
	"github.com/sweetpotato0/nl2sql/provider/openai"
)

// Settings is the provider-agnostic backend configuration.
type Settings struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// New builds an LLM client for the named backend: "openai", "claude" or
// "gemini".
func New(ctx context.Context, s Settings) (agent.LLMClient, error) {
	switch s.Name {
	case "openai", "":
		cfg := openai.DefaultConfig().WithAPIKey(s.APIKey).WithBaseURL(s.BaseURL)
		if s.Model != "" {
			cfg.WithModel(s.Model)
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = s.MaxTokens
		}
		if s.Temperature > 0 {
			cfg.Temperature = s.Temperature
		}
		return openai.New(cfg), nil

	case "claude", "anthropic":
		cfg := claude.DefaultConfig(s.APIKey, s.BaseURL)
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = s.MaxTokens
		}
		if s.Temperature > 0 {
			cfg.Temperature = s.Temperature
		}
		return claude.New(cfg), nil

	case "gemini", "google":
		cfg := gemini.DefaultConfig(s.APIKey)
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = int32(s.MaxTokens)
		}
		if s.Temperature > 0 {
			cfg.Temperature = float32(s.Temperature)
		}
		return gemini.New(ctx, cfg)

	default:
		return nil, errors.Newf(errors.KindInvalidArguments, "unknown provider %q", s.Name)
	}
}
