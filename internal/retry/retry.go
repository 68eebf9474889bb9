// Package retry wraps single cloud calls with a bounded attempt budget,
// attempt-scaled timeouts and a growing, jittered backoff delay. Auth
// failures are never retried; an empty-but-successful response is treated
// as a remote error, since the cloud returning nothing is indistinguishable
// from a transient malfunction.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff"

	"meterbridge/internal/cloud"
	"meterbridge/internal/logger"
	"meterbridge/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 20 * time.Second
	DefaultDelay       = 5 * time.Second
)

var errEmptyResponse = errors.New("empty response from API")

// Policy is an explicit, reusable retry policy. The zero value is not
// usable; construct with NewPolicy or fill every field.
type Policy struct {
	// MaxAttempts bounds the total number of invocations, including the
	// first one.
	MaxAttempts int
	// Timeout is the base per-attempt time budget; attempt n runs under
	// a deadline of n × Timeout, tolerating degrading conditions.
	Timeout time.Duration
	// Delay is the base backoff delay. After each failed attempt the
	// delay grows by Delay plus up to Delay of random jitter.
	Delay time.Duration

	Log *logger.Logger
}

// NewPolicy returns a policy with the default budget.
func NewPolicy(log *logger.Logger) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		Delay:       DefaultDelay,
		Log:         log,
	}
}

// growingDelay implements backoff.BackOff with the linear-plus-jitter
// growth the upstream service tolerates best: delay, 2×delay+jitter,
// 3×delay+jitter, ...
type growingDelay struct {
	base time.Duration
	next time.Duration
}

func (g *growingDelay) NextBackOff() time.Duration {
	d := g.next
	g.next += g.base + jitter(g.base)
	return d
}

func (g *growingDelay) Reset() { g.next = g.base }

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// Do runs fn under the policy and returns its result.
//
// nonEmpty, when non-nil, is the explicit emptiness check for the result
// type: a successful call whose result fails the check follows the same
// transient path as a remote error. Auth errors propagate immediately with
// their cause attached; when the attempt budget is exhausted the last
// cause is wrapped in a *cloud.APIError.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error), nonEmpty func(T) bool) (T, error) {
	var (
		result  T
		zero    T
		attempt int
	)

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(attempt)*p.Timeout)
		defer cancel()

		v, err := fn(attemptCtx)
		if err == nil {
			if nonEmpty != nil && !nonEmpty(v) {
				err = &cloud.APIError{Op: op, Err: errEmptyResponse}
			} else {
				result = v
				return nil
			}
		}

		if cloud.IsAuthError(err) {
			return backoff.Permanent(err)
		}
		metrics.IncRetryAttempt(op)
		if p.Log != nil {
			p.Log.Warnw("api_attempt_failed",
				"op", op, "attempt", attempt, "max_attempts", p.MaxAttempts, "err", err)
		}
		return err
	}

	delays := &growingDelay{base: p.Delay}
	delays.Reset()
	policy := backoff.WithContext(
		backoff.WithMaxRetries(delays, uint64(p.MaxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if cloud.IsAuthError(err) || ctx.Err() != nil {
			return zero, err
		}
		return zero, &cloud.APIError{
			Op:  op,
			Err: fmt.Errorf("failed after %d attempts: %w", attempt, err),
		}
	}
	return result, nil
}
