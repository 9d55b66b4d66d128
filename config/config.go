// Package config loads service configuration from a YAML file with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Database string `yaml:"database"`

	Provider      ProviderConfig       `yaml:"provider"`
	MCP           MCPConfig            `yaml:"mcp"`
	Orchestration OrchestrationConfig  `yaml:"orchestration"`
	Auth          AuthConfig           `yaml:"auth"`
	QueryLog      QueryLogConfig       `yaml:"query_log"`
	Telemetry     TelemetryConfig      `yaml:"telemetry"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// MCPConfig configures the connection to the MCP tool server.
type MCPConfig struct {
	// Transport is "stdio" or "http".
	Transport string   `yaml:"transport"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
}

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration struct {
	time.Duration
}

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration value")
	}
	d.Duration = time.Duration(n)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// OrchestrationConfig bounds the model/tool loop.
type OrchestrationConfig struct {
	MaxIterations      int      `yaml:"max_iterations"`
	CallTimeout        Duration `yaml:"call_timeout"`
	MaxRetries         int      `yaml:"max_retries"`
	RetryBackoff       Duration `yaml:"retry_backoff"`
	ParallelTools      bool     `yaml:"parallel_tools"`
	HistoryTokenBudget int      `yaml:"history_token_budget"`
	TokenizerModel     string   `yaml:"tokenizer_model"`
}

// AuthConfig configures API key verification.
type AuthConfig struct {
	Enabled  bool        `yaml:"enabled"`
	AdminKey string      `yaml:"admin_key"`
	Backend  string      `yaml:"backend"`
	MySQLDSN string      `yaml:"mysql_dsn"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig holds the redis keystore settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// QueryLogConfig configures query history persistence.
type QueryLogConfig struct {
	Backend    string `yaml:"backend"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Disable     bool   `yaml:"disable"`
	Environment string `yaml:"environment"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Database: "mysql",
		Provider: ProviderConfig{
			Name:        "openai",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		MCP: MCPConfig{
			Transport: "stdio",
		},
		Orchestration: OrchestrationConfig{
			MaxIterations:      5,
			CallTimeout:        Duration{60 * time.Second},
			MaxRetries:         2,
			RetryBackoff:       Duration{500 * time.Millisecond},
			HistoryTokenBudget: 0,
			TokenizerModel:     "cl100k_base",
		},
		Auth: AuthConfig{
			Backend: "mysql",
		},
		QueryLog: QueryLogConfig{
			Backend:    "memory",
			Database:   "nl2sql",
			Collection: "queries",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path yields the defaults with overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("NL2SQL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("NL2SQL_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("NL2SQL_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("NL2SQL_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("NL2SQL_MCP_URL"); v != "" {
		c.MCP.URL = v
		c.MCP.Transport = "http"
	}
	if v := os.Getenv("NL2SQL_ADMIN_KEY"); v != "" {
		c.Auth.AdminKey = v
	}
	if v := os.Getenv("NL2SQL_MYSQL_DSN"); v != "" {
		c.Auth.MySQLDSN = v
	}
	if v := os.Getenv("NL2SQL_REDIS_ADDR"); v != "" {
		c.Auth.Redis.Addr = v
	}
	if v := os.Getenv("NL2SQL_MONGO_URI"); v != "" {
		c.QueryLog.URI = v
		c.QueryLog.Backend = "mongo"
	}
	if v := os.Getenv("NL2SQL_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestration.MaxIterations = n
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	v := NewValidator()

	v.RequireNonEmpty("listen", c.Listen)
	v.ValidateOneOf("provider.name", c.Provider.Name, "openai", "claude", "anthropic", "gemini", "google")
	v.ValidateFloatRange("provider.temperature", c.Provider.Temperature, 0.0, 2.0)
	v.ValidateOneOf("mcp.transport", c.MCP.Transport, "stdio", "http")
	if c.MCP.Transport == "stdio" {
		v.RequireNonEmpty("mcp.command", c.MCP.Command)
	} else {
		v.RequireNonEmpty("mcp.url", c.MCP.URL)
	}
	v.RequirePositive("orchestration.max_iterations", c.Orchestration.MaxIterations)
	v.ValidateRange("orchestration.max_retries", c.Orchestration.MaxRetries, 0, 10)
	if c.Auth.Enabled {
		v.ValidateOneOf("auth.backend", c.Auth.Backend, "mysql", "redis")
		switch c.Auth.Backend {
		case "mysql":
			v.RequireNonEmpty("auth.mysql_dsn", c.Auth.MySQLDSN)
		case "redis":
			v.RequireNonEmpty("auth.redis.addr", c.Auth.Redis.Addr)
			v.ValidateDBNumber("auth.redis.db", c.Auth.Redis.DB)
		}
	}
	v.ValidateOneOf("query_log.backend", c.QueryLog.Backend, "memory", "mongo")
	if c.QueryLog.Backend == "mongo" {
		v.RequireNonEmpty("query_log.uri", c.QueryLog.URI)
		v.RequireNonEmpty("query_log.database", c.QueryLog.Database)
		v.RequireNonEmpty("query_log.collection", c.QueryLog.Collection)
	}

	return v.Error()
}
