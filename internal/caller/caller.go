package caller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dangthobach/data-extraction/internal/common"
)

// Caller wraps every external call with a per-attempt timeout, a bounded
// exponential backoff retry, and a circuit breaker. One Caller per downstream
// dependency; callers must not hold locks while invoking Do.
type Caller struct {
	name       string
	timeout    time.Duration
	maxRetries uint64
	breaker    *Breaker
	log        *slog.Logger
}

// Options tunes a Caller. Zero values fall back to defaults.
type Options struct {
	Timeout          time.Duration // per-attempt timeout, default 30s
	MaxRetries       uint64        // retries after the first attempt, default 2
	FailureThreshold int           // consecutive failures before the breaker opens
	ResetTimeout     time.Duration // how long the breaker stays open
}

func New(name string, opts Options, log *slog.Logger) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Caller{
		name:       name,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		breaker:    NewBreaker(opts.FailureThreshold, opts.ResetTimeout),
		log:        log,
	}
}

// Do runs fn under the breaker and retry policy. fn receives a context bounded
// by the per-attempt timeout. Permanent errors (wrapped via Permanent) are not
// retried.
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		c.log.Warn("circuit open, call rejected", "caller", c.name)
		return common.WrapError(ErrCircuitOpen, c.name)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		if err := fn(actx); err != nil {
			c.log.Warn("call attempt failed", "caller", c.name, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, policy)

	if err != nil {
		c.breaker.Failure()
		return common.WrapError(err, c.name)
	}
	c.breaker.Success()
	return nil
}

// Permanent marks err as non-retryable for Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// State exposes the breaker state for diagnostics.
func (c *Caller) State() BreakerState {
	return c.breaker.State()
}
