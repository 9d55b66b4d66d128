package tool

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
)

// Invoker executes server-side tool calls against the registry. Recoverable
// failures (bad arguments, unknown tool, execution errors reported by the
// tool server) come back as error-flagged ToolResults so the orchestration
// loop can feed them to the model; transport failures are retried a bounded
// number of times and then surface as terminal errors.
type Invoker struct {
	registry    *Registry
	maxRetries  int
	backoff     time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithMaxRetries bounds retries for transport-level failures.
func WithMaxRetries(n int) InvokerOption {
	return func(i *Invoker) {
		if n >= 0 {
			i.maxRetries = n
		}
	}
}

// WithBackoff sets the delay between transport retries. The delay doubles on
// each attempt.
func WithBackoff(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		if d > 0 {
			i.backoff = d
		}
	}
}

// WithCallTimeout bounds the duration of a single tool call.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		if d > 0 {
			i.callTimeout = d
		}
	}
}

// WithInvokerLogger overrides the invoker logger.
func WithInvokerLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker creates an Invoker over the given registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry:    registry,
		maxRetries:  2,
		backoff:     500 * time.Millisecond,
		callTimeout: 30 * time.Second,
		logger:      logging.WithComponent("invoker"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke executes a single server-side tool call. The caller is responsible
// for checking the locus via the registry first; client-side calls are never
// dispatched here.
func (i *Invoker) Invoke(ctx context.Context, call message.ToolCall) (*message.ToolResult, error) {
	tool, err := i.registry.Get(call.Name)
	if err != nil {
		// Unknown tool is surfaced to the model, not to the caller.
		return errorResult(call.ID, err), nil
	}

	args := call.Args
	if args == nil {
		args = make(map[string]any)
	}

	if err := tool.ValidateArgs(args); err != nil {
		return errorResult(call.ID, err), nil
	}

	if tool.Handler == nil {
		return nil, errors.Newf(errors.KindInternal, "tool %s has no handler", tool.Name)
	}

	var lastErr error
	delay := i.backoff
	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindRequestCancelled, err, "tool call aborted")
		}
		if attempt > 0 {
			i.logger.Warn("retrying tool call",
				"tool", call.Name, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(errors.KindRequestCancelled, ctx.Err(), "tool call aborted")
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
		content, err := tool.Handler(callCtx, args)
		cancel()

		if err == nil {
			return &message.ToolResult{CallID: call.ID, Content: content}, nil
		}

		kind := errors.KindOf(err)
		if kind.Recoverable() {
			return errorResult(call.ID, err), nil
		}
		if !kind.Transient() && callCtx.Err() == nil {
			return nil, errors.Wrap(kind, err, "tool call failed")
		}
		lastErr = err
	}

	return nil, errors.Wrap(errors.KindToolUnavailable, lastErr, "tool call retries exhausted")
}

func errorResult(callID string, err error) *message.ToolResult {
	return &message.ToolResult{
		CallID:  callID,
		Content: err.Error(),
		IsError: true,
	}
}
