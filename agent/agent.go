// Package agent implements the orchestration loop: a bounded alternation of
// model calls and tool executions over a per-request session. One Agent
// handles one request; the registry, invoker and LLM client it references are
// shared read-only.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
	"github.com/sweetpotato0/nl2sql/pkg/telemetry"
	"github.com/sweetpotato0/nl2sql/tokenizer"
	"github.com/sweetpotato0/nl2sql/tool"
)

const defaultMaxIterations = 5

// Agent drives a single natural-language request to a terminal state.
type Agent struct {
	name          string
	systemPrompt  string
	maxIterations int
	callTimeout   time.Duration
	parallelTools bool

	llm      LLMClient
	registry *tool.Registry
	invoker  *tool.Invoker

	counter       tokenizer.Counter
	historyBudget int

	logger *slog.Logger
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithName sets the agent name
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithSystemPrompt sets the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithMaxIterations sets the maximum number of model calls per run.
func WithMaxIterations(max int) Option {
	return func(a *Agent) {
		if max > 0 {
			a.maxIterations = max
		}
	}
}

// WithProvider sets the LLM provider
func WithProvider(provider LLMClient) Option {
	return func(a *Agent) {
		a.llm = provider
	}
}

// WithRegistry sets the shared tool registry.
func WithRegistry(registry *tool.Registry) Option {
	return func(a *Agent) {
		if registry != nil {
			a.registry = registry
		}
	}
}

// WithInvoker sets the tool invoker used for server-side calls.
func WithInvoker(invoker *tool.Invoker) Option {
	return func(a *Agent) {
		a.invoker = invoker
	}
}

// WithCallTimeout bounds each external call (model or tool) within an iteration.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithParallelTools executes independent server-side tool calls from the same
// turn concurrently. Results are reassembled in the model-specified order
// before the next model call.
func WithParallelTools(enable bool) Option {
	return func(a *Agent) {
		a.parallelTools = enable
	}
}

// WithHistoryBudget trims conversation history to a token budget before each
// model call, keeping system messages and the most recent turns.
func WithHistoryBudget(counter tokenizer.Counter, budget int) Option {
	return func(a *Agent) {
		a.counter = counter
		a.historyBudget = budget
	}
}

// WithLogger overrides the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a new agent with the given options
func New(opts ...Option) *Agent {
	agent := &Agent{
		name:          "nl2sql",
		maxIterations: defaultMaxIterations,
		callTimeout:   60 * time.Second,
		registry:      tool.NewRegistry(),
		logger:        logging.WithComponent("agent"),
	}

	for _, opt := range opts {
		opt(agent)
	}

	if agent.invoker == nil {
		agent.invoker = tool.NewInvoker(agent.registry)
	}

	return agent
}

// Run starts a fresh session for the given user question and drives it to a
// terminal state: a final answer, a client-side tool hand-off, or a kinded
// error.
func (a *Agent) Run(ctx context.Context, question string) (*Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.KindInvalidArguments, "question cannot be empty")
	}

	s := newSession()
	if a.systemPrompt != "" {
		s.append(message.NewMessage(message.RoleSystem, a.systemPrompt))
	}
	s.append(message.NewMessage(message.RoleUser, question))

	return a.loop(ctx, s)
}

// Resume continues a run after a client-side tool hand-off. The caller
// resupplies the prior history and the result of the tool it executed; no
// session state is retained server-side between turns.
func (a *Agent) Resume(ctx context.Context, history []*message.Message, result *message.ToolResult) (*Outcome, error) {
	if len(history) == 0 {
		return nil, errors.New(errors.KindInvalidArguments, "resume requires prior history")
	}

	s := newSession(message.CloneMessages(history)...)
	if result != nil {
		s.append(message.NewToolResultMessage(result))
	}

	return a.loop(ctx, s)
}

func (a *Agent) loop(ctx context.Context, s *session) (outcome *Outcome, err error) {
	tracer := otel.Tracer("nl2sql/agent")
	ctx, span := tracer.Start(ctx, "agent.run")
	span.SetAttributes(attribute.String("session.id", s.id))
	defer func() { telemetry.End(span, err) }()

	schemas := a.registry.ToJSONSchemas()

	for s.iterations < a.maxIterations {
		if cerr := ctx.Err(); cerr != nil {
			return nil, errors.Wrap(errors.KindRequestCancelled, cerr, "request cancelled")
		}
		s.iterations++

		a.logger.Debug("model call", "session", s.id, "iteration", s.iterations)
		resp, gerr := a.generate(ctx, s, schemas)
		if gerr != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(errors.KindRequestCancelled, ctx.Err(), "request cancelled")
			}
			return nil, gerr
		}
		if resp == nil || resp.Message == nil {
			return nil, errors.New(errors.KindMalformedModelResponse, "model returned empty response")
		}

		msg := resp.Message
		s.append(msg)

		if len(msg.ToolCalls) == 0 {
			if strings.TrimSpace(msg.Content) == "" {
				return nil, errors.New(errors.KindMalformedModelResponse, "model returned neither answer nor tool calls")
			}
			a.logger.Info("final answer", "session", s.id, "iterations", s.iterations)
			return &Outcome{
				Kind:       OutcomeFinalAnswer,
				Answer:     msg.Content,
				SessionID:  s.id,
				Iterations: s.iterations,
				Messages:   s.history(),
			}, nil
		}

		// A client-side call takes precedence over everything else in the
		// same turn: the loop terminates and hands it back to the caller.
		if call := a.firstClientCall(msg.ToolCalls); call != nil {
			a.logger.Info("client tool hand-off", "session", s.id, "tool", call.Name)
			return &Outcome{
				Kind:       OutcomeClientToolRequest,
				ToolCall:   call,
				SessionID:  s.id,
				Iterations: s.iterations,
				Messages:   s.history(),
			}, nil
		}

		results, terr := a.executeToolCalls(ctx, msg.ToolCalls)
		if terr != nil {
			return nil, terr
		}
		for _, res := range results {
			s.append(message.NewToolResultMessage(res))
		}
	}

	return nil, errors.Newf(errors.KindIterationLimitExceeded,
		"no final answer after %d iterations", a.maxIterations)
}

func (a *Agent) generate(ctx context.Context, s *session, schemas []map[string]any) (*GenerateResponse, error) {
	msgs := s.messages
	if a.counter != nil && a.historyBudget > 0 {
		msgs = tokenizer.TrimMessages(msgs, a.counter, a.historyBudget)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	return a.llm.Generate(callCtx, &GenerateRequest{Messages: msgs, Tools: schemas})
}

func (a *Agent) firstClientCall(calls []message.ToolCall) *message.ToolCall {
	for _, call := range calls {
		if a.registry.Locus(call.Name) == tool.LocusClient {
			c := call
			return &c
		}
	}
	return nil
}

// executeToolCalls runs all server-side calls from one turn and returns their
// results in the order the model listed them.
func (a *Agent) executeToolCalls(ctx context.Context, calls []message.ToolCall) ([]*message.ToolResult, error) {
	results := make([]*message.ToolResult, len(calls))

	if a.parallelTools && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range calls {
			g.Go(func() error {
				res, err := a.invoker.Invoke(gctx, call)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i, call := range calls {
		res, err := a.invoker.Invoke(ctx, call)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}
