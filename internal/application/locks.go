package application

import (
	"context"
	"sync"
	"time"

	"github.com/example/room-reservation/internal/interval"
)

// SlotLocks serializes booking writes per room and date. Conflict checks and
// the insert they guard must happen under the same lock, otherwise two
// concurrent requests could both pass the check and double-book the slot.
// Every service that writes reservations must share one instance, or their
// writers serialize against nobody.
type SlotLocks struct {
	mu      sync.Mutex
	waiters map[string]*slotLock
	timeout time.Duration
}

type slotLock struct {
	ch   chan struct{}
	refs int
}

// NewSlotLocks constructs a lock table. A non-positive timeout falls back to
// two seconds.
func NewSlotLocks(timeout time.Duration) *SlotLocks {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SlotLocks{
		waiters: make(map[string]*slotLock),
		timeout: timeout,
	}
}

func slotKey(roomID string, date interval.Date) string {
	return roomID + "|" + date.String()
}

// Acquire blocks until the lock for the room and date is held, the configured
// timeout elapses, or ctx is cancelled. On success the caller must invoke the
// returned release function exactly once.
func (l *SlotLocks) Acquire(ctx context.Context, roomID string, date interval.Date) (func(), error) {
	key := slotKey(roomID, date)

	l.mu.Lock()
	lock, ok := l.waiters[key]
	if !ok {
		lock = &slotLock{ch: make(chan struct{}, 1)}
		lock.ch <- struct{}{}
		l.waiters[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case <-lock.ch:
		return func() { l.release(key, lock) }, nil
	case <-timer.C:
		l.drop(key, lock)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.drop(key, lock)
		return nil, ctx.Err()
	}
}

func (l *SlotLocks) release(key string, lock *slotLock) {
	lock.ch <- struct{}{}
	l.drop(key, lock)
}

// drop decrements the reference count and removes the entry once nobody is
// holding or waiting, keeping the table bounded by concurrent requests.
func (l *SlotLocks) drop(key string, lock *slotLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.waiters, key)
	}
	l.mu.Unlock()
}
