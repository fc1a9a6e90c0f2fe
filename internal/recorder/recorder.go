// Package recorder implements the track recording state machine:
// idle → recording ⇄ paused → stopped. Fix ingestion, pauses and stops are
// serialized by one lock, and the session is persisted after every
// accepted mutation.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/spatial"
)

// Recorder owns one recording session
type Recorder struct {
	store SessionStore
	guard ResourceGuard
	clock Clock
	opts  Options

	mu         sync.Mutex
	state      State
	session    *models.TrackingSession
	sensorErr  error
	persistErr error
	discarded  int
}

// New creates an idle recorder
func New(store SessionStore, guard ResourceGuard, clock Clock, opts Options) *Recorder {
	if clock == nil {
		clock = RealClock()
	}
	return &Recorder{
		store: store,
		guard: guard,
		clock: clock,
		opts:  opts,
		state: StateIdle,
	}
}

// Restore adopts an active session left behind by an interrupted process.
// It reports whether a session was adopted.
func (r *Recorder) Restore(ctx context.Context) (bool, error) {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return false, fmt.Errorf("%w: restore from %s", ErrInvalidTransition, r.state)
	}

	session, err := r.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load active session: %w", err)
	}
	if session == nil || !session.IsActive {
		return false, nil
	}

	session.Migrate()
	r.session = session
	r.state = StateRecording
	if session.IsPaused {
		r.state = StatePaused
	}

	now := r.now()
	if r.opts.StaleAfter > 0 && now-session.LastUpdate > r.opts.StaleAfter.Milliseconds() {
		events = append(events, r.event(EventStaleSession, nil,
			fmt.Sprintf("adopted session last updated %s ago", time.Duration(now-session.LastUpdate)*time.Millisecond)))
	}

	log.Printf("[TrackRecorder] Adopted session %s (state=%s, fixes=%d)", session.ID, r.state, len(session.Fixes))

	r.acquire(ctx, &events)
	r.persist(ctx, &events)
	return true, nil
}

// Start creates a new session and acquires the host resources
func (r *Recorder) Start(ctx context.Context) (*models.TrackingSession, error) {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return nil, fmt.Errorf("%w: start from %s", ErrInvalidTransition, r.state)
	}

	existing, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil && existing.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, existing.ID)
	}

	report, err := r.guard.Acquire(ctx, r.handler())
	if err != nil {
		if errors.Is(err, resource.ErrResourceBusy) {
			return nil, fmt.Errorf("%w: %v", ErrSessionActive, err)
		}
		return nil, fmt.Errorf("failed to acquire host resources: %w", err)
	}
	if report.WakeLockErr != nil {
		events = append(events, r.event(EventWakeLockUnavailable, report.WakeLockErr,
			"recording without wake lock; background survival is not guaranteed"))
	}

	now := r.now()
	r.session = &models.TrackingSession{
		ID:         uuid.NewString(),
		StartTime:  now,
		Fixes:      []models.GPSFix{},
		IsActive:   true,
		LastUpdate: now,
		Device:     r.opts.Device,
		SyncStatus: models.SyncStatusPending,
		Version:    models.SessionSchemaVersion,
	}
	r.state = StateRecording
	r.sensorErr = nil
	r.persistErr = nil

	log.Printf("[TrackRecorder] Started session %s", r.session.ID)

	r.persist(ctx, &events)
	return r.session.Clone(), nil
}

// HandleFix ingests one fix. It returns true when the fix was accepted.
// Fixes arriving while paused, duplicated, out of order or within the
// minimum movement of the last fix are discarded without error.
func (r *Recorder) HandleFix(ctx context.Context, fix models.GPSFix) (bool, error) {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRecording:
	case StatePaused:
		r.discarded++
		return false, nil
	default:
		return false, ErrNotRecording
	}

	if err := fix.Validate(); err != nil {
		r.discarded++
		return false, err
	}
	if r.opts.MaxAccuracyM > 0 && fix.Accuracy > r.opts.MaxAccuracyM {
		r.discarded++
		return false, nil
	}

	last, hasLast := r.session.LastFix()
	var step float64
	if hasLast {
		if fix.Timestamp <= last.Timestamp {
			r.discarded++
			return false, nil
		}
		step = spatial.FixDistance(last, fix)
		if step < r.opts.MinMovementM {
			r.discarded++
			return false, nil
		}
	}

	if fix.Battery == nil {
		fix.Battery = r.guard.Battery(ctx)
	}

	r.apply(fix, last, hasLast, step)
	r.sensorErr = nil
	r.persist(ctx, &events)
	return true, nil
}

// apply appends an accepted fix and updates the running aggregates
func (r *Recorder) apply(fix, prev models.GPSFix, hasPrev bool, step float64) {
	s := r.session
	s.Fixes = append(s.Fixes, fix)

	if hasPrev {
		s.TotalDistance += step

		if fix.Speed == nil {
			dt := float64(fix.Timestamp-prev.Timestamp) / 1000
			if v := step / dt; v > s.MaxSpeed {
				s.MaxSpeed = v
			}
		}
		if fix.Altitude != nil && prev.Altitude != nil {
			delta := *fix.Altitude - *prev.Altitude
			if delta > 0 {
				s.TotalAscent += delta
			} else {
				s.TotalDescent -= delta
			}
		}
	}
	if fix.Speed != nil && *fix.Speed > s.MaxSpeed {
		s.MaxSpeed = *fix.Speed
	}

	now := r.now()
	s.LastUpdate = now
	s.AverageSpeed = averageSpeed(s, now)
}

// HandleSensorError records a recoverable location failure. The recorder
// stays in its current state.
func (r *Recorder) HandleSensorError(err error) {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return
	}
	r.sensorErr = err
	events = append(events, r.event(EventSensorError, err, err.Error()))
}

// Pause suspends fix ingestion. The location watch stays open.
func (r *Recorder) Pause(ctx context.Context) error {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, r.state)
	}

	now := r.now()
	r.session.IsPaused = true
	r.session.PauseStartedAt = &now
	r.session.LastUpdate = now
	r.state = StatePaused

	r.persist(ctx, &events)
	return nil
}

// Resume closes the current pause interval
func (r *Recorder) Resume(ctx context.Context) error {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, r.state)
	}

	now := r.now()
	r.closePause(now)
	r.session.LastUpdate = now
	r.state = StateRecording

	r.persist(ctx, &events)
	return nil
}

// TagPlace attaches a place to the session while it is recording or paused
func (r *Recorder) TagPlace(ctx context.Context, place models.Place) (models.Place, error) {
	var events []Event
	defer func() { r.emit(events) }()

	if err := place.Normalize(); err != nil {
		return models.Place{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return models.Place{}, fmt.Errorf("%w: tag place while %s", ErrInvalidTransition, r.state)
	}

	now := r.now()
	if place.ID == "" {
		place.ID = uuid.NewString()
	}
	if place.CreatedAt == 0 {
		place.CreatedAt = now
	}
	r.session.Places = append(r.session.Places, place)
	r.session.LastUpdate = now

	r.persist(ctx, &events)
	return place, nil
}

// Stop finalizes the session, releases the host resources and archives the
// session for sync. The returned session is the finalized copy.
func (r *Recorder) Stop(ctx context.Context) (*models.TrackingSession, error) {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return nil, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, r.state)
	}

	r.release(&events)

	now := r.now()
	s := r.session
	if s.IsPaused {
		r.closePause(now)
	}
	s.EndTime = &now
	s.IsActive = false
	s.LastUpdate = now
	s.TotalDistance = spatial.CumulativeDistance(s.Fixes)
	s.AverageSpeed = averageSpeed(s, now)
	r.state = StateStopped

	if err := r.finalize(ctx, s); err != nil {
		// Keep the finalized record in the slot; inactive records are never adopted
		events = append(events, r.event(EventPersistenceFailed, err, "failed to archive finalized session"))
		r.persist(ctx, &events)
		r.persistErr = err
	}

	log.Printf("[TrackRecorder] Stopped session %s (fixes=%d, distance=%.1fm, active=%dms)",
		s.ID, len(s.Fixes), s.TotalDistance, s.ActiveDurationMs(now))

	return s.Clone(), nil
}

// Discard abandons the session without archiving it
func (r *Recorder) Discard(ctx context.Context) error {
	var events []Event
	defer func() { r.emit(events) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return fmt.Errorf("%w: discard from %s", ErrInvalidTransition, r.state)
	}

	r.release(&events)

	now := r.now()
	if r.session.IsPaused {
		r.closePause(now)
	}
	r.session.EndTime = &now
	r.session.IsActive = false
	r.state = StateStopped

	if err := r.store.Clear(ctx); err != nil {
		r.persistErr = err
		events = append(events, r.event(EventPersistenceFailed, err, "failed to clear discarded session"))
	}

	log.Printf("[TrackRecorder] Discarded session %s", r.session.ID)
	return nil
}

// State returns the current lifecycle state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns a copy of the current session, or nil when idle
func (r *Recorder) Session() *models.TrackingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Clone()
}

// Status returns a summary of the recorder
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:          r.state,
		WakeLockHeld:   r.guard.WakeLockHeld(),
		DiscardedFixes: r.discarded,
	}
	if r.sensorErr != nil {
		st.SensorError = r.sensorErr.Error()
	}
	if r.persistErr != nil {
		st.PersistError = r.persistErr.Error()
	}
	if s := r.session; s != nil {
		st.SessionID = s.ID
		st.FixCount = len(s.Fixes)
		st.PlaceCount = len(s.Places)
		st.TotalDistance = s.TotalDistance
		st.ActiveDurationMs = s.ActiveDurationMs(r.now())
		if last, ok := s.LastFix(); ok {
			st.LastFixAt = last.Timestamp
		}
	}
	return st
}

func (r *Recorder) handler() resource.FixHandler {
	return resource.FixHandler{
		OnFix: func(fix models.GPSFix) {
			if _, err := r.HandleFix(context.Background(), fix); err != nil && !errors.Is(err, ErrNotRecording) {
				log.Printf("[TrackRecorder] Rejected fix: %v", err)
			}
		},
		OnError: r.HandleSensorError,
	}
}

// acquire is used on restore, where a failure leaves the session recording
// without new fixes
func (r *Recorder) acquire(ctx context.Context, events *[]Event) {
	report, err := r.guard.Acquire(ctx, r.handler())
	if err != nil {
		r.sensorErr = err
		*events = append(*events, r.event(EventSensorError, err, "location watch unavailable after restore"))
		return
	}
	if report.WakeLockErr != nil {
		*events = append(*events, r.event(EventWakeLockUnavailable, report.WakeLockErr,
			"recording without wake lock; background survival is not guaranteed"))
	}
}

func (r *Recorder) release(events *[]Event) {
	if err := r.guard.Release(); err != nil {
		*events = append(*events, r.event(EventReleaseFailed, err, "failed to release host resources"))
	}
}

func (r *Recorder) closePause(now int64) {
	s := r.session
	if s.PauseStartedAt != nil && now > *s.PauseStartedAt {
		s.PausedDuration += now - *s.PauseStartedAt
	}
	s.PauseStartedAt = nil
	s.IsPaused = false
}

func (r *Recorder) persist(ctx context.Context, events *[]Event) {
	if err := r.store.Save(ctx, r.session); err != nil {
		r.persistErr = err
		*events = append(*events, r.event(EventPersistenceFailed, err, "failed to persist session"))
		return
	}
	r.persistErr = nil
}

func (r *Recorder) finalize(ctx context.Context, s *models.TrackingSession) error {
	if f, ok := r.store.(Finalizer); ok {
		return f.Finalize(ctx, s)
	}
	if err := r.store.Archive(ctx, s); err != nil {
		return err
	}
	return r.store.Clear(ctx)
}

func (r *Recorder) event(kind EventKind, err error, msg string) Event {
	e := Event{Kind: kind, Message: msg, Err: err, At: r.now()}
	if r.session != nil {
		e.SessionID = r.session.ID
	}
	return e
}

// emit runs after the lock is released so callbacks may call back into the recorder
func (r *Recorder) emit(events []Event) {
	for _, e := range events {
		if e.Err != nil {
			log.Printf("[TrackRecorder] %s: %s: %v", e.Kind, e.Message, e.Err)
		} else {
			log.Printf("[TrackRecorder] %s: %s", e.Kind, e.Message)
		}
		if r.opts.OnEvent != nil {
			r.opts.OnEvent(e)
		}
	}
}

func (r *Recorder) now() int64 {
	return r.clock.Now().UnixMilli()
}

func averageSpeed(s *models.TrackingSession, now int64) float64 {
	active := s.ActiveDurationMs(now)
	if active <= 0 {
		return 0
	}
	return s.TotalDistance / (float64(active) / 1000)
}
