package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/logger"
)

func newTestManager() *Manager {
	return NewManager(context.Background(), logger.GetLogger())
}

func TestManager_StartLoopUntilFalse(t *testing.T) {
	mgr := newTestManager()

	var n atomic.Int32
	require.NoError(t, mgr.Start("counter", func() bool {
		return n.Add(1) < 5
	}))

	require.True(t, mgr.WaitTimeout(time.Second))
	assert.Equal(t, int32(5), n.Load())
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_StopCancelsTasks(t *testing.T) {
	mgr := newTestManager()

	started := make(chan struct{})
	require.NoError(t, mgr.Go("blocker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	assert.Equal(t, 1, mgr.TaskCount())

	mgr.Stop()
	require.True(t, mgr.WaitTimeout(time.Second))
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := newTestManager()
	mgr.Stop()

	err := mgr.Start("late", func() bool { return false })
	require.ErrorIs(t, err, ErrStopped)

	// Wait rearms the manager
	mgr.Wait()
	require.NoError(t, mgr.Start("again", func() bool { return false }))
	mgr.Wait()
}

func TestManager_RecoversPanic(t *testing.T) {
	mgr := newTestManager()

	require.NoError(t, mgr.Start("panicky", func() bool {
		panic("boom")
	}))

	require.True(t, mgr.WaitTimeout(time.Second))
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr := NewManager(ctx, logger.GetLogger())

	require.NoError(t, mgr.Go("child", func(ctx context.Context) { <-ctx.Done() }))
	cancel()

	require.True(t, mgr.WaitTimeout(time.Second))
}
