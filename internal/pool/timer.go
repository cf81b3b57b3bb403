// Package pool recycles the timers behind reply timeouts and mandated device delays.
//
// A transaction waits on at least one timer per frame it sends, so timers are taken
// from a sync.Pool instead of being allocated per wait.
package pool

import (
	"context"
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer returns a running timer that fires after d. Hand it back with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	t, ok := timers.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	t.Stop()
	timers.Put(t)
}

// Sleep blocks for d or until ctx is done, and returns ctx.Err() in the latter case.
// A non-positive d returns at once unless ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
