// Command nl2sql runs the natural-language-to-SQL orchestration service: an
// HTTP API in front of a bounded model/tool loop backed by a MySQL MCP tool
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweetpotato0/nl2sql/agent"
	"github.com/sweetpotato0/nl2sql/api"
	"github.com/sweetpotato0/nl2sql/auth"
	authstore "github.com/sweetpotato0/nl2sql/auth/store"
	"github.com/sweetpotato0/nl2sql/config"
	"github.com/sweetpotato0/nl2sql/mcp"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
	"github.com/sweetpotato0/nl2sql/pkg/telemetry"
	"github.com/sweetpotato0/nl2sql/prompt"
	"github.com/sweetpotato0/nl2sql/provider"
	"github.com/sweetpotato0/nl2sql/querylog"
	logstore "github.com/sweetpotato0/nl2sql/querylog/store"
	"github.com/sweetpotato0/nl2sql/schema"
	"github.com/sweetpotato0/nl2sql/tokenizer"
	"github.com/sweetpotato0/nl2sql/tool"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "nl2sql: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := logging.WithComponent("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "nl2sql",
		Environment: cfg.Telemetry.Environment,
		Disable:     cfg.Telemetry.Disable,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	// Connect to the MCP tool server.
	var mcpClient *mcp.Client
	switch cfg.MCP.Transport {
	case "http":
		mcpClient, err = mcp.NewStreamableClient(ctx, cfg.MCP.URL)
	default:
		mcpClient, err = mcp.NewStdioClient(ctx, cfg.MCP.Command,
			mcp.WithCommandArgs(cfg.MCP.Args...))
	}
	if err != nil {
		return fmt.Errorf("connect mcp server: %w", err)
	}
	defer mcpClient.Close()

	registry := tool.NewRegistry()
	if err := mcpClient.RegisterTools(ctx, registry); err != nil {
		return fmt.Errorf("load mcp tools: %w", err)
	}
	if err := tool.RegisterClientTools(registry); err != nil {
		return fmt.Errorf("register client tools: %w", err)
	}

	schemaService := schema.NewService(mcpClient)

	// Refresh the registry and schema cache when the server's tool list
	// changes.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-mcpClient.ToolsChanged():
				logger.Info("mcp tool list changed, refreshing")
				if err := mcpClient.RegisterTools(ctx, registry); err != nil {
					logger.Error("failed to refresh mcp tools", "error", err)
				}
				schemaService.Invalidate()
			}
		}
	}()

	systemPrompt, err := buildSystemPrompt(ctx, cfg, schemaService)
	if err != nil {
		return err
	}

	llm, err := provider.New(ctx, provider.Settings{
		Name:        cfg.Provider.Name,
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	llm = agent.WithRetry(llm, agent.RetryPolicy{
		MaxAttempts: cfg.Orchestration.MaxRetries + 1,
		Backoff:     cfg.Orchestration.RetryBackoff.Duration,
	})

	invoker := tool.NewInvoker(registry,
		tool.WithMaxRetries(cfg.Orchestration.MaxRetries),
		tool.WithBackoff(cfg.Orchestration.RetryBackoff.Duration),
		tool.WithCallTimeout(cfg.Orchestration.CallTimeout.Duration),
	)

	agentOpts := []agent.Option{
		agent.WithProvider(llm),
		agent.WithRegistry(registry),
		agent.WithInvoker(invoker),
		agent.WithSystemPrompt(systemPrompt),
		agent.WithMaxIterations(cfg.Orchestration.MaxIterations),
		agent.WithCallTimeout(cfg.Orchestration.CallTimeout.Duration),
		agent.WithParallelTools(cfg.Orchestration.ParallelTools),
	}
	if cfg.Orchestration.HistoryTokenBudget > 0 {
		counter, err := tokenizer.NewTiktoken(cfg.Orchestration.TokenizerModel)
		if err != nil {
			return fmt.Errorf("init tokenizer: %w", err)
		}
		agentOpts = append(agentOpts,
			agent.WithHistoryBudget(counter, cfg.Orchestration.HistoryTokenBudget))
	}
	runner := agent.New(agentOpts...)

	keys, err := buildKeystore(ctx, cfg)
	if err != nil {
		return err
	}
	defer keys.Close()

	recorder, err := buildRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer recorder.Close(context.Background())

	server := api.NewServer(api.Options{
		Runner:      runner,
		Registry:    registry,
		Keys:        keys,
		AdminKey:    cfg.Auth.AdminKey,
		AuthEnabled: cfg.Auth.Enabled,
		Recorder:    recorder,
		Servers:     serverInfo(cfg, mcpClient),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- server.Start(cfg.Listen)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildSystemPrompt renders the default template with the discovered schema.
func buildSystemPrompt(ctx context.Context, cfg *config.Config, svc *schema.Service) (string, error) {
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("load database schema: %w", err)
	}
	prompts := prompt.NewManager()
	return prompts.System(cfg.Database, snap.Render())
}

func buildKeystore(ctx context.Context, cfg *config.Config) (auth.Store, error) {
	if !cfg.Auth.Enabled {
		return authstore.NewMemoryStore(), nil
	}
	switch cfg.Auth.Backend {
	case "redis":
		return authstore.NewRedisStore(ctx, &authstore.RedisConfig{
			Addr:     cfg.Auth.Redis.Addr,
			Password: cfg.Auth.Redis.Password,
			DB:       cfg.Auth.Redis.DB,
			Prefix:   cfg.Auth.Redis.Prefix,
		})
	default:
		return authstore.NewMySQLStore(ctx, cfg.Auth.MySQLDSN)
	}
}

func buildRecorder(ctx context.Context, cfg *config.Config) (querylog.Recorder, error) {
	if cfg.QueryLog.Backend == "mongo" {
		return logstore.NewMongoRecorder(ctx, &logstore.MongoConfig{
			URI:        cfg.QueryLog.URI,
			Database:   cfg.QueryLog.Database,
			Collection: cfg.QueryLog.Collection,
		})
	}
	return logstore.NewMemoryRecorder(0), nil
}

func serverInfo(cfg *config.Config, client *mcp.Client) []api.ServerInfo {
	info := api.ServerInfo{Transport: cfg.MCP.Transport}
	if cfg.MCP.Transport == "http" {
		info.Endpoint = cfg.MCP.URL
	} else {
		info.Endpoint = cfg.MCP.Command
	}
	if init := client.InitializeResult(); init != nil {
		info.Name = init.ServerInfo.Name
	}
	if info.Name == "" {
		info.Name = "mysql-mcp"
	}
	return []api.ServerInfo{info}
}
