// Package retry provides the bounded retry policy shared by the artwork
// pipeline: a fixed number of attempts separated by a fixed delay.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Once runs an operation a single time.
var Once = Policy{Attempts: 1}

// New returns a policy, clamping attempts to at least one.
func New(attempts int, delay time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return Policy{Attempts: attempts, Delay: delay}
}

// Notify is called after a failed attempt that will be retried.
// attempt is 1-based.
type Notify func(attempt int, err error, next time.Duration)

// Do runs op until it succeeds, the attempts are exhausted, or ctx is done.
// It returns the last error when every attempt failed.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(attempts)),
		// the attempt count is the only bound
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			notify(attempt, err, next)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx)
	}, opts...)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
