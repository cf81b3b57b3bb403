package transport

import (
	"context"
	"errors"

	"github.com/arloliu/go-hidlink/logger"
)

// IsRetryable reports whether err belongs to a kind that a fresh attempt may clear:
// framing errors, reply timeouts, protocol violations and ErrTransient.
//
// Cancellation, disposal, a closed channel and invalid arguments are never retryable.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrDisposed), errors.Is(err, ErrChannelClosed), errors.Is(err, ErrInvalidArgument):
		return false
	}

	return errors.Is(err, ErrFraming) ||
		errors.Is(err, ErrReplyTimeout) ||
		errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrTransient)
}

// Retrier repeats an operation that failed with a retryable error.
//
// An operation is attempted at most Retries+1 times. Logger and Metrics are optional.
type Retrier struct {
	Retries int
	Logger  logger.Logger
	Metrics *Metrics
}

// Do runs fn until it succeeds, fails with a non-retryable error or runs out of retries.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// RetryValue is Retrier.Do for operations returning a value.
func RetryValue[T any](ctx context.Context, r Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= r.Retries || !IsRetryable(err) {
			return zero, err
		}

		if r.Metrics != nil {
			r.Metrics.incRetryCount()
		}
		if r.Logger != nil {
			r.Logger.Debug("retry operation", "attempt", attempt+1, "retries", r.Retries, "error", err)
		}
	}
}

// Retry runs fn with up to retries additional attempts.
func Retry(ctx context.Context, retries int, fn func(ctx context.Context) error) error {
	return Retrier{Retries: retries}.Do(ctx, fn)
}
