package resource

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWakeLockReleased is returned when releasing a lock twice
var ErrWakeLockReleased = errors.New("wake lock already released")

// LeaseLocker hands out a single wake lock lease at a time. The device
// shell polls the recorder status and keeps its screen lock for as long as
// the lease is held.
type LeaseLocker struct {
	mu       sync.Mutex
	held     bool
	since    time.Time
	acquired int
}

// NewLeaseLocker creates a locker with no lease outstanding
func NewLeaseLocker() *LeaseLocker {
	return &LeaseLocker{}
}

// RequestWakeLock grants the lease if it is free
func (l *LeaseLocker) RequestWakeLock(ctx context.Context) (WakeLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil, ErrResourceBusy
	}
	l.held = true
	l.since = time.Now()
	l.acquired++
	return &lease{locker: l, generation: l.acquired}, nil
}

// Held reports whether the lease is out and since when
func (l *LeaseLocker) Held() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, l.since
}

type lease struct {
	locker     *LeaseLocker
	generation int
	released   bool
}

func (w *lease) Release() error {
	w.locker.mu.Lock()
	defer w.locker.mu.Unlock()

	if w.released {
		return ErrWakeLockReleased
	}
	w.released = true
	if w.locker.acquired == w.generation {
		w.locker.held = false
		w.locker.since = time.Time{}
	}
	return nil
}
