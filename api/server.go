// Package api exposes the orchestration service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sweetpotato0/nl2sql/agent"
	"github.com/sweetpotato0/nl2sql/auth"
	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
	"github.com/sweetpotato0/nl2sql/querylog"
	"github.com/sweetpotato0/nl2sql/tool"
)

// Runner drives a question to a terminal outcome. *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, question string) (*agent.Outcome, error)
	Resume(ctx context.Context, history []*message.Message, result *message.ToolResult) (*agent.Outcome, error)
}

// ServerInfo describes the connected MCP tool server.
type ServerInfo struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Options configures the HTTP server.
type Options struct {
	Runner      Runner
	Registry    *tool.Registry
	Keys        auth.Store
	AdminKey    string
	AuthEnabled bool
	Recorder    querylog.Recorder
	Servers     []ServerInfo
	Logger      *slog.Logger
}

// Server wires the orchestration loop into an echo application.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger *slog.Logger
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{echo: e, opts: opts, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api")
	api.GET("/healthz", s.handleHealth)

	queries := api.Group("")
	if s.opts.AuthEnabled {
		queries.Use(s.requireAPIKey)
	}
	queries.POST("/query", s.handleQuery)
	queries.POST("/resume", s.handleResume)
	queries.GET("/capabilities", s.handleCapabilities)
	queries.GET("/servers", s.handleServers)

	admin := api.Group("", s.requireAdminKey)
	admin.POST("/api-keys/:name", s.handleCreateKey)
	admin.GET("/api-keys", s.handleListKeys)
	admin.DELETE("/api-keys/:key", s.handleDeleteKey)
	admin.GET("/queries", s.handleRecentQueries)
}

// Start runs the server until the listener fails or is shut down.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// requireAPIKey verifies the X-API-Key header against the keystore and stores
// the key's name for query log attribution.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-API-Key")
		if key == "" {
			return errorJSON(c, http.StatusUnauthorized, "invalid_arguments", "missing X-API-Key header")
		}
		name, err := s.opts.Keys.Verify(c.Request().Context(), key)
		if err != nil {
			return errorJSON(c, http.StatusForbidden, "invalid_arguments", "invalid api key")
		}
		c.Set("api_key_name", name)
		return next(c)
	}
}

// requireAdminKey guards key management routes with the X-Admin-Key header.
func (s *Server) requireAdminKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.AdminKey == "" {
			return errorJSON(c, http.StatusForbidden, "internal", "admin key not configured")
		}
		if c.Request().Header.Get("X-Admin-Key") != s.opts.AdminKey {
			return errorJSON(c, http.StatusForbidden, "invalid_arguments", "invalid admin key")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question string `json:"question" validate:"required,min=1"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_arguments", "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_arguments", "question is required")
	}

	start := time.Now()
	outcome, err := s.opts.Runner.Run(c.Request().Context(), req.Question)
	s.record(c, req.Question, outcome, err, time.Since(start))
	if err != nil {
		return s.outcomeError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

type resumeRequest struct {
	Messages   []*message.Message  `json:"messages" validate:"required,min=1"`
	ToolResult *message.ToolResult `json:"tool_result"`
}

func (s *Server) handleResume(c echo.Context) error {
	var req resumeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_arguments", "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_arguments", "messages are required")
	}

	start := time.Now()
	outcome, err := s.opts.Runner.Resume(c.Request().Context(), req.Messages, req.ToolResult)
	s.record(c, "", outcome, err, time.Since(start))
	if err != nil {
		return s.outcomeError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

type capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Locus       string `json:"locus"`
}

func (s *Server) handleCapabilities(c echo.Context) error {
	tools := s.opts.Registry.List()
	caps := make([]capability, 0, len(tools))
	for _, t := range tools {
		locus := t.Locus
		if locus == tool.LocusUnknown {
			locus = tool.LocusServer
		}
		caps = append(caps, capability{
			Name:        t.Name,
			Description: t.Description,
			Locus:       string(locus),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": caps})
}

func (s *Server) handleServers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"servers": s.opts.Servers})
}

func (s *Server) handleCreateKey(c echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_arguments", "key name is required")
	}
	key, err := s.opts.Keys.Create(c.Request().Context(), name)
	if err != nil {
		s.logger.Error("failed to create api key", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal", "failed to create api key")
	}
	return c.JSON(http.StatusOK, map[string]string{"api_key": key, "name": name})
}

func (s *Server) handleListKeys(c echo.Context) error {
	keys, err := s.opts.Keys.List(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list api keys", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal", "failed to list api keys")
	}
	return c.JSON(http.StatusOK, keys)
}

func (s *Server) handleDeleteKey(c echo.Context) error {
	key := c.Param("key")
	if err := s.opts.Keys.Delete(c.Request().Context(), key); err != nil {
		if err == auth.ErrKeyNotFound {
			return errorJSON(c, http.StatusNotFound, "invalid_arguments", "api key not found")
		}
		s.logger.Error("failed to delete api key", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal", "failed to delete api key")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "api key deleted"})
}

func (s *Server) handleRecentQueries(c echo.Context) error {
	if s.opts.Recorder == nil {
		return c.JSON(http.StatusOK, []*querylog.Entry{})
	}
	entries, err := s.opts.Recorder.Recent(c.Request().Context(), 50)
	if err != nil {
		s.logger.Error("failed to read query log", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal", "failed to read query log")
	}
	return c.JSON(http.StatusOK, entries)
}

// record writes a query log entry; failures are logged, never surfaced.
func (s *Server) record(c echo.Context, question string, outcome *agent.Outcome, runErr error, elapsed time.Duration) {
	if s.opts.Recorder == nil {
		return
	}

	entry := &querylog.Entry{
		Question: question,
		Duration: elapsed.Milliseconds(),
	}
	if name, ok := c.Get("api_key_name").(string); ok {
		entry.APIKeyName = name
	}
	if outcome != nil {
		entry.Outcome = string(outcome.Kind)
		entry.Answer = outcome.Answer
		entry.Iterations = outcome.Iterations
		if outcome.ToolCall != nil {
			entry.ToolName = outcome.ToolCall.Name
		}
	}
	if runErr != nil {
		entry.Outcome = "failure"
		entry.ErrorKind = string(errors.KindOf(runErr))
	}

	if err := s.opts.Recorder.Record(c.Request().Context(), entry); err != nil {
		s.logger.Error("failed to record query", "error", err)
	}
}

// outcomeError maps a kinded error to an HTTP status and structured body.
func (s *Server) outcomeError(c echo.Context, err error) error {
	kind := errors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errors.KindInvalidArguments, errors.KindUnknownTool:
		status = http.StatusBadRequest
	case errors.KindIterationLimitExceeded:
		status = http.StatusUnprocessableEntity
	case errors.KindRequestCancelled:
		status = http.StatusRequestTimeout
	case errors.KindModelUnavailable, errors.KindToolUnavailable:
		status = http.StatusServiceUnavailable
	case errors.KindMalformedModelResponse:
		status = http.StatusBadGateway
	}

	s.logger.Warn("query failed", "kind", kind, "error", err)
	return errorJSON(c, status, string(kind), err.Error())
}

func errorJSON(c echo.Context, status int, kind, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": msg,
		},
	})
}
