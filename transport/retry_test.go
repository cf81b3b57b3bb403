package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/frame"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"framing", frame.Fail(frame.CheckChecksum, 3, 1, 2), true},
		{"wrapped timeout", fmt.Errorf("get vcp: %w", ErrReplyTimeout), true},
		{"protocol violation", ErrProtocolViolation, true},
		{"transient", ErrTransient, true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), false},
		{"disposed", ErrDisposed, false},
		{"channel closed", ErrChannelClosed, false},
		{"invalid argument", ErrInvalidArgument, false},
		{"buffer too small", ErrBufferTooSmall, false},
		{"write pending", ErrWritePending, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func failingOp(failures int, failErr error) (func(context.Context) (int, error), *int) {
	calls := 0
	return func(context.Context) (int, error) {
		calls++
		if calls <= failures {
			return 0, failErr
		}

		return 42, nil
	}, &calls
}

func TestRetryValue_SucceedsWithinBudget(t *testing.T) {
	for retries := 0; retries <= 3; retries++ {
		for failures := 0; failures <= 4; failures++ {
			m := &Metrics{}
			op, calls := failingOp(failures, ErrReplyTimeout)

			v, err := RetryValue(context.Background(), Retrier{Retries: retries, Metrics: m}, op)
			if failures <= retries {
				require.NoError(t, err)
				assert.Equal(t, 42, v)
				assert.Equal(t, failures+1, *calls)
				assert.Equal(t, uint64(failures), m.RetryCount.Load())
			} else {
				require.ErrorIs(t, err, ErrReplyTimeout)
				assert.Equal(t, retries+1, *calls)
			}
		}
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, func(context.Context) error {
		calls++
		return fmt.Errorf("bad code: %w", ErrInvalidArgument)
	})

	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, 5, func(context.Context) error {
		calls++
		cancel()
		return ErrTransient
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
