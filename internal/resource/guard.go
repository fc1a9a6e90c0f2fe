package resource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// AcquireReport describes what Acquire managed to obtain
type AcquireReport struct {
	Watching     bool
	WakeLockHeld bool
	// WakeLockErr is set when recording proceeds without a wake lock.
	// Background survival is not guaranteed in that case.
	WakeLockErr error
}

// Guard owns the singleton host resources of one recording: the location
// watch and the wake lock. At most one holder at a time.
type Guard struct {
	source  FixSource
	locker  WakeLocker
	battery BatteryReader
	opts    WatchOptions

	mu   sync.Mutex
	held bool
	sub  Subscription
	lock WakeLock
}

// NewGuard creates a guard. source may be nil when the host has no
// location capability; locker and battery may be nil when unsupported.
func NewGuard(source FixSource, locker WakeLocker, battery BatteryReader, opts WatchOptions) *Guard {
	return &Guard{
		source:  source,
		locker:  locker,
		battery: battery,
		opts:    opts,
	}
}

// Acquire starts the location watch and requests a wake lock. A failed
// watch is an error; a failed wake lock is only reported.
func (g *Guard) Acquire(ctx context.Context, handler FixHandler) (AcquireReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held {
		return AcquireReport{}, ErrResourceBusy
	}
	if g.source == nil {
		return AcquireReport{}, ErrLocationUnavailable
	}

	sub, err := g.source.Watch(ctx, handler, g.opts)
	if err != nil {
		return AcquireReport{}, fmt.Errorf("failed to start location watch: %w", err)
	}

	report := AcquireReport{Watching: true}
	g.sub = sub
	g.held = true

	if g.locker == nil {
		report.WakeLockErr = ErrWakeLockUnsupported
	} else if lock, err := g.locker.RequestWakeLock(ctx); err != nil {
		report.WakeLockErr = err
	} else {
		g.lock = lock
		report.WakeLockHeld = true
	}

	if report.WakeLockErr != nil {
		log.Printf("[ResourceGuard] Recording without wake lock: %v", report.WakeLockErr)
	}

	return report, nil
}

// Release cancels the watch and releases the wake lock. It is safe to call
// when nothing was acquired; both resources are released even if one fails.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	if g.sub != nil {
		if err := g.sub.Cancel(); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel location watch: %w", err))
		}
		g.sub = nil
	}
	if g.lock != nil {
		if err := g.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release wake lock: %w", err))
		}
		g.lock = nil
	}
	g.held = false

	return errors.Join(errs...)
}

// Held reports whether the guard currently owns the host resources
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// WakeLockHeld reports whether a wake lock is currently held
func (g *Guard) WakeLockHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock != nil
}

// Battery returns the current battery snapshot, or nil when unavailable
func (g *Guard) Battery(ctx context.Context) *models.BatteryInfo {
	if g.battery == nil {
		return nil
	}
	info, err := g.battery.BatteryInfo(ctx)
	if err != nil {
		return nil
	}
	return info
}
