package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
)

// RetryPolicy bounds local retries for transient model-backend failures.
// Non-transient failures (malformed responses, auth errors) are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the initial delay between attempts; it doubles each time.
	Backoff time.Duration
}

// DefaultRetryPolicy returns a conservative retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

type retryClient struct {
	inner  LLMClient
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry decorates an LLM client with bounded retries for transient
// failures (backend unreachable, rate limiting).
func WithRetry(client LLMClient, policy RetryPolicy) LLMClient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff <= 0 {
		policy.Backoff = time.Second
	}
	return &retryClient{
		inner:  client,
		policy: policy,
		logger: logging.WithComponent("llm-retry"),
	}
}

func (c *retryClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var lastErr error
	delay := c.policy.Backoff

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying model call", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				// A deadline firing mid-backoff is still a slow backend, not
				// a caller cancellation.
				if ctx.Err() == context.DeadlineExceeded {
					return nil, errors.Wrap(errors.KindModelUnavailable, lastErr, "model call deadline exceeded")
				}
				return nil, errors.Wrap(errors.KindRequestCancelled, ctx.Err(), "model call aborted")
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !errors.KindOf(err).Transient() || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.Wrap(errors.KindModelUnavailable, lastErr, "model retries exhausted")
}
