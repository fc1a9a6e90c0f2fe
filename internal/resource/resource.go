// Package resource adapts host capabilities (a continuous location watch,
// a wake lock and battery status) behind small interfaces so the recorder
// can be driven by a real device, a replayed file, or a test double.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

var (
	// ErrLocationUnavailable means the host has no location capability
	ErrLocationUnavailable = errors.New("location capability unavailable")
	// ErrWakeLockUnsupported means the host cannot keep the device awake
	ErrWakeLockUnsupported = errors.New("wake lock unsupported")
	// ErrResourceBusy means another recorder already holds the host resources
	ErrResourceBusy = errors.New("host resources already held")
	// ErrNoSubscriber means a fix was pushed while nobody is watching
	ErrNoSubscriber = errors.New("no active location watch")
)

// SensorErrorCode follows the geolocation error codes
type SensorErrorCode int

// SensorErrorCode constants
const (
	PermissionDenied    SensorErrorCode = 1
	PositionUnavailable SensorErrorCode = 2
	Timeout             SensorErrorCode = 3
)

func (c SensorErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("sensor_error_%d", int(c))
	}
}

// SensorError is a recoverable location failure reported by the host
type SensorError struct {
	Code    SensorErrorCode `json:"code"`
	Message string          `json:"message,omitempty"`
}

func (e *SensorError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WatchOptions mirrors the options of a host position watch
type WatchOptions struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

// DefaultWatchOptions asks for high accuracy and never reuses cached positions
var DefaultWatchOptions = WatchOptions{
	HighAccuracy: true,
	MaximumAge:   0,
	Timeout:      30 * time.Second,
}

// FixHandler receives fixes and sensor errors from a watch. Calls may come
// from any goroutine.
type FixHandler struct {
	OnFix   func(models.GPSFix)
	OnError func(error)
}

// Subscription is a cancelable location watch
type Subscription interface {
	Cancel() error
}

// FixSource starts a continuous location watch
type FixSource interface {
	Watch(ctx context.Context, handler FixHandler, opts WatchOptions) (Subscription, error)
}

// WakeLock is a held wake lock
type WakeLock interface {
	Release() error
}

// WakeLocker requests wake locks from the host
type WakeLocker interface {
	RequestWakeLock(ctx context.Context) (WakeLock, error)
}

// BatteryReader reads a battery snapshot. A nil snapshot with a nil error
// means the host does not report battery status.
type BatteryReader interface {
	BatteryInfo(ctx context.Context) (*models.BatteryInfo, error)
}
