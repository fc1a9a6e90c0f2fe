package recorder

import (
	"errors"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// State is a recorder lifecycle state
type State string

// State constants. Stopped is terminal.
const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

var (
	// ErrInvalidTransition is a contract violation, e.g. pause while idle
	ErrInvalidTransition = errors.New("invalid recorder state transition")
	// ErrSessionActive is returned when another session already holds the active slot
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNotRecording is returned for fixes that arrive outside a recording
	ErrNotRecording = errors.New("recorder is not recording")
)

// EventKind classifies recoverable conditions reported to the caller
type EventKind string

// EventKind constants
const (
	EventSensorError         EventKind = "sensor_error"
	EventWakeLockUnavailable EventKind = "wake_lock_unavailable"
	EventPersistenceFailed   EventKind = "persistence_failed"
	EventStaleSession        EventKind = "stale_session"
	EventReleaseFailed       EventKind = "release_failed"
)

// Event is a recoverable condition. Recording continues after every event.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	At        int64     `json:"at"` // Unix milliseconds
}

// Status is a point-in-time view of the recorder
type Status struct {
	State            State   `json:"state"`
	SessionID        string  `json:"sessionId,omitempty"`
	FixCount         int     `json:"fixCount"`
	PlaceCount       int     `json:"placeCount"`
	TotalDistance    float64 `json:"totalDistance"`
	ActiveDurationMs int64   `json:"activeDurationMs"`
	LastFixAt        int64   `json:"lastFixAt,omitempty"`
	WakeLockHeld     bool    `json:"wakeLockHeld"`
	SensorError      string  `json:"sensorError,omitempty"`
	PersistError     string  `json:"persistError,omitempty"`
	DiscardedFixes   int     `json:"discardedFixes"`
}

// Clock abstracts time so tests can drive pauses deterministically
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// Options tunes the recorder
type Options struct {
	// MinMovementM discards fixes closer than this to the last accepted fix
	MinMovementM float64
	// MaxAccuracyM discards fixes with worse horizontal accuracy. Zero disables.
	MaxAccuracyM float64
	// StaleAfter flags adopted sessions whose last update is older. Zero disables.
	StaleAfter time.Duration
	// Device is recorded once on new sessions
	Device models.DeviceInfo
	// OnEvent receives recoverable conditions. It is called without the
	// recorder lock held.
	OnEvent func(Event)
}

// DefaultMinMovementM suppresses stationary GPS jitter (0.01 km)
const DefaultMinMovementM = 10.0

// DefaultOptions returns the standard recorder options
func DefaultOptions() Options {
	return Options{MinMovementM: DefaultMinMovementM}
}
