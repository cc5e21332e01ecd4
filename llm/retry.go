package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetryInitialInterval is the first delay between retry attempts.
	DefaultRetryInitialInterval = 1 * time.Second
	// DefaultRetryMaxInterval caps the delay between retry attempts.
	DefaultRetryMaxInterval = 30 * time.Second
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// WithRetry wraps a Caller so that retryable failures (rate limits and
// provider 5xx responses) are re-attempted with exponential backoff. Callers
// never retry on their own; this decorator is strictly opt-in. A policy with
// zero MaxRetries returns the caller unchanged.
func WithRetry(caller Caller, policy RetryPolicy, logger zerolog.Logger) Caller {
	if policy.MaxRetries == 0 {
		return caller
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryMaxInterval
	}
	return &retryingCaller{
		caller: caller,
		policy: policy,
		logger: logger.With().Str("component", "retryingCaller").Logger(),
	}
}

type retryingCaller struct {
	caller Caller
	policy RetryPolicy
	logger zerolog.Logger
}

// Model implements Caller.Model.
func (r *retryingCaller) Model() Model {
	return r.caller.Model()
}

// Call implements Caller.Call, retrying retryable errors.
func (r *retryingCaller) Call(ctx context.Context, params CallBase, turns []Turn) (*CallResp, error) {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.policy.InitialInterval),
		backoff.WithMaxInterval(r.policy.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.policy.MaxRetries), ctx)

	operation := func() (*CallResp, error) {
		resp, err := r.caller.Call(ctx, params, turns)
		if err != nil && !IsRetryableError(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, delay time.Duration) {
		r.logger.Warn().Err(err).Dur("delay", delay).Msg("Retryable model call failure, retrying")
	}

	return backoff.RetryNotifyWithData(operation, b, notify)
}

var _ Caller = (*retryingCaller)(nil)
