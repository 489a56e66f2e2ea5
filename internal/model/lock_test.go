package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockExclusiveAndFIFO(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, 1))
	holder, held := m.HolderID()
	assert.True(t, held)
	assert.Equal(t, uint32(1), holder)

	// A second Lock from the same connection is rejected, not reentrant.
	err := m.Lock(ctx, 1)
	assert.Error(t, err)

	order := make(chan uint32, 2)
	go func() {
		_ = m.Lock(ctx, 2)
		order <- 2
	}()
	time.Sleep(10 * time.Millisecond) // let 2 enqueue before 3
	go func() {
		_ = m.Lock(ctx, 3)
		order <- 3
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, m.Unlock(1))
	first := <-order
	assert.Equal(t, uint32(2), first, "FIFO: connection 2 queued before 3")

	_, held = m.HolderID()
	assert.True(t, held)
}

func TestLockForceReleaseOnDisconnect(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()
	require.NoError(t, m.Lock(ctx, 1))

	m.ForceRelease(1)
	_, held := m.HolderID()
	assert.False(t, held)

	require.NoError(t, m.Lock(ctx, 2))
}

func TestLockCancelledWaiterDoesNotBlockQueue(t *testing.T) {
	m := NewLockManager()
	require.NoError(t, m.Lock(context.Background(), 1))

	cancelCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Lock(cancelCtx, 2) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.Error(t, err)

	require.NoError(t, m.Unlock(1))
	require.NoError(t, m.Lock(context.Background(), 3))
}
