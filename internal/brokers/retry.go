package brokers

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

const (
	// maxAttempts bounds the retry loop: three total attempts, no more.
	maxAttempts = 3
	// attemptTimeout is the per-attempt network budget.
	attemptTimeout = 10 * time.Second
)

// withRetry runs fn up to maxAttempts times, sleeping 300-600 ms between
// attempts. Only temporary failures are retried; session, rate-limit and
// permanent errors surface immediately. fn must not mutate ledger state:
// an intermediate failure leaves nothing to roll back.
func withRetry[T any](ctx context.Context, log zerolog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if KindOf(err) != KindTemporary || attempt == maxAttempts {
			return zero, err
		}

		delay := 300*time.Millisecond + time.Duration(rand.Int63n(int64(300*time.Millisecond)))
		log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Temporary broker failure, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
