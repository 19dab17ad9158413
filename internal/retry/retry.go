// internal/retry/retry.go
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Connect runs dial with exponential backoff until it succeeds, returns a
// permanent error, or maxElapsed passes.
func Connect[T any](ctx context.Context, logger *zap.Logger, what string, maxElapsed time.Duration, dial func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	notify := func(err error, next time.Duration) {
		logger.Warn("Connection attempt failed, retrying",
			zap.String("target", what),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	return backoff.Retry(ctx, func() (T, error) { return dial(ctx) },
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(notify))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
