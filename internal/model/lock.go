package model

import (
	"context"
	"sync"

	"github.com/duet3d/dcsd/internal/dcserr"
)

type waiter struct {
	connID uint32
	ready  chan struct{}
}

// LockManager is the FIFO fair mutex scoped across connections described in
// spec §4.8: at most one holder at a time, release-on-disconnect is total,
// and a connection may not reacquire a lock it already holds.
type LockManager struct {
	mu      sync.Mutex
	holder  uint32 // valid only when hasHeld
	hasHeld bool
	waiters []*waiter // FIFO queue
}

// NewLockManager builds an unheld lock manager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Lock blocks the caller (connID) until it becomes the holder, ctx is
// cancelled, or it already holds the lock (AlreadyHeld, not reentrant).
// releaseLocked assigns the new holder before waking it, so the handoff is
// atomic under m.mu and a racing fresh Lock() call can never jump the
// FIFO queue.
func (m *LockManager) Lock(ctx context.Context, connID uint32) error {
	m.mu.Lock()
	if m.hasHeld && m.holder == connID {
		m.mu.Unlock()
		return dcserr.New(dcserr.AlreadyHeld, "connection %d already holds the object model lock", connID)
	}
	if !m.hasHeld {
		m.holder = connID
		m.hasHeld = true
		m.mu.Unlock()
		return nil
	}

	w := &waiter{connID: connID, ready: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.cancelWaiter(w)
		return dcserr.New(dcserr.Cancelled, "lock request cancelled")
	}
}

// cancelWaiter removes w from the queue. If it had already been granted the
// lock (the race between ctx.Done firing and releaseLocked picking w) it is
// released again immediately so the next waiter isn't stuck behind a
// caller who no longer wants it.
func (m *LockManager) cancelWaiter(w *waiter) {
	m.mu.Lock()
	for i, other := range m.waiters {
		if other == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			m.mu.Unlock()
			return
		}
	}
	grantedToMe := m.hasHeld && m.holder == w.connID
	m.mu.Unlock()
	if grantedToMe {
		_ = m.Unlock(w.connID)
	}
}

// Unlock releases the lock held by connID, failing NotHeld if connID is not
// the current holder. The head of the FIFO queue, if any, becomes the new
// holder.
func (m *LockManager) Unlock(connID uint32) error {
	m.mu.Lock()
	if !m.hasHeld || m.holder != connID {
		m.mu.Unlock()
		return dcserr.New(dcserr.NotHeld, "connection %d does not hold the object model lock", connID)
	}
	m.releaseLocked()
	return nil
}

// ForceRelease is called on a connection's disconnect (spec §4.8: "the lock
// manager subscribes to connection-close events"). It is a no-op if connID
// is not the current holder.
func (m *LockManager) ForceRelease(connID uint32) {
	m.mu.Lock()
	if m.hasHeld && m.holder == connID {
		m.releaseLocked()
		return
	}
	m.mu.Unlock()
}

// releaseLocked hands the lock to the next waiter in FIFO order (assigning
// the new holder before unblocking it), or marks the lock unheld. Caller
// must hold m.mu; this method always releases it.
func (m *LockManager) releaseLocked() {
	if len(m.waiters) == 0 {
		m.hasHeld = false
		m.holder = 0
		m.mu.Unlock()
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.holder = next.connID
	m.hasHeld = true
	m.mu.Unlock()
	close(next.ready)
}

// HolderID returns the current holder and whether the lock is held, for
// diagnostics.
func (m *LockManager) HolderID() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder, m.hasHeld
}
