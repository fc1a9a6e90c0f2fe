package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/scoring"
	"github.com/jengzang/trailscore-backend-go/internal/stats"
	"github.com/jengzang/trailscore-backend-go/internal/syncbridge"
)

var (
	// ErrSyncDisabled is returned for manual retries when no sync endpoint is configured
	ErrSyncDisabled = errors.New("sync is not configured")
	// ErrInvalidStatus is returned for unknown sync status filters
	ErrInvalidStatus = errors.New("unknown sync status")
)

// maxEvents bounds the recent event list returned with the status
const maxEvents = 20

// SessionStore is the full store the service drives: the active slot, the
// archive and score attachment
type SessionStore interface {
	recorder.SessionStore
	syncbridge.ArchiveStore
	AttachScore(ctx context.Context, sessionID string, places []models.Place, result models.ScoringResult) error
}

// Syncer delivers archived sessions. *syncbridge.Bridge implements it.
type Syncer interface {
	SyncSession(ctx context.Context, sessionID string) error
	Retry(ctx context.Context, sessionID string) error
}

// RecordingService drives one recorder at a time on behalf of the device
// shell. Stopped recorders are replaced on the next start.
type RecordingService struct {
	store   SessionStore
	source  *resource.PushSource
	guard   recorder.ResourceGuard
	clock   recorder.Clock
	opts    recorder.Options
	scoring config.Scoring
	syncer  Syncer

	mu  sync.Mutex
	rec *recorder.Recorder

	// events has its own lock: recorder callbacks run while mu is held
	evMu   sync.Mutex
	events []recorder.Event

	wg sync.WaitGroup
}

// NewRecordingService creates the service. syncer may be nil to keep
// finalized sessions in the archive without uploading them.
func NewRecordingService(store SessionStore, source *resource.PushSource, guard recorder.ResourceGuard,
	clock recorder.Clock, opts recorder.Options, rules config.Scoring, syncer Syncer) *RecordingService {
	s := &RecordingService{
		store:   store,
		source:  source,
		guard:   guard,
		clock:   clock,
		opts:    opts,
		scoring: rules,
		syncer:  syncer,
	}
	s.rec = s.newRecorder(opts.Device)
	return s
}

func (s *RecordingService) newRecorder(device models.DeviceInfo) *recorder.Recorder {
	opts := s.opts
	opts.Device = device
	opts.OnEvent = s.recordEvent
	return recorder.New(s.store, s.guard, s.clock, opts)
}

func (s *RecordingService) recordEvent(e recorder.Event) {
	s.evMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.evMu.Unlock()

	if s.opts.OnEvent != nil {
		s.opts.OnEvent(e)
	}
}

func (s *RecordingService) current() *recorder.Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Restore adopts a session left active by a previous process and scores
// archive entries that were finalized but never scored
func (s *RecordingService) Restore(ctx context.Context) (bool, error) {
	adopted, err := s.current().Restore(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to restore session: %w", err)
	}

	pending, err := s.store.ListArchived(ctx, models.SyncStatusPending)
	if err != nil {
		return adopted, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	for i := range pending {
		if pending[i].Score != nil {
			continue
		}
		if err := s.scoreArchived(ctx, &pending[i]); err != nil {
			return adopted, err
		}
	}
	return adopted, nil
}

// scoreArchived scores an archive entry with its own places and no
// exemption, as a session interrupted between finalization and scoring
func (s *RecordingService) scoreArchived(ctx context.Context, entry *models.CompletedSession) error {
	places := entry.Places
	if len(places) == 0 {
		places = entry.Session.Places
	}
	result := s.score(&entry.Session, places, false)
	if err := s.store.AttachScore(ctx, entry.Session.ID, places, result); err != nil {
		return fmt.Errorf("failed to score archived session %s: %w", entry.Session.ID, err)
	}
	log.Printf("[RecordingService] Scored archived session %s: %.1f points", entry.Session.ID, result.TotalPoints)
	return nil
}

// Start begins a new recording
func (s *RecordingService) Start(ctx context.Context, device models.DeviceInfo) (*models.TrackingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.rec.State() {
	case recorder.StateRecording, recorder.StatePaused:
		return nil, recorder.ErrSessionActive
	}

	s.evMu.Lock()
	s.events = nil
	s.evMu.Unlock()

	rec := s.newRecorder(device)
	session, err := rec.Start(ctx)
	if err != nil {
		return nil, err
	}
	s.rec = rec
	return session, nil
}

// Pause suspends the current recording
func (s *RecordingService) Pause(ctx context.Context) error {
	return s.current().Pause(ctx)
}

// Resume continues the current recording
func (s *RecordingService) Resume(ctx context.Context) error {
	return s.current().Resume(ctx)
}

// IngestResult summarizes a batch of pushed fixes
type IngestResult struct {
	Accepted  int      `json:"accepted"`
	Discarded int      `json:"discarded"`
	Invalid   int      `json:"invalid"`
	Errors    []string `json:"errors,omitempty"`
}

// IngestFixes validates the fixes and delivers them through the location
// watch. Invalid fixes are counted and skipped.
func (s *RecordingService) IngestFixes(ctx context.Context, fixes []models.GPSFix) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.source.Watching() {
		return nil, recorder.ErrNotRecording
	}

	res := &IngestResult{}
	before := s.rec.Status().FixCount
	for _, fix := range fixes {
		if err := fix.Validate(); err != nil {
			res.Invalid++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if err := s.source.Push(fix); err != nil {
			return nil, recorder.ErrNotRecording
		}
	}
	res.Accepted = s.rec.Status().FixCount - before
	res.Discarded = len(fixes) - res.Invalid - res.Accepted
	return res, nil
}

// ReportSensorError forwards a host location failure to the recorder
func (s *RecordingService) ReportSensorError(sensorErr *resource.SensorError) error {
	if err := s.source.ReportError(sensorErr); err != nil {
		return recorder.ErrNotRecording
	}
	return nil
}

// TagPlace attaches a place to the current recording
func (s *RecordingService) TagPlace(ctx context.Context, place models.Place) (models.Place, error) {
	return s.current().TagPlace(ctx, place)
}

// StopRequest carries the finalization input of the device shell
type StopRequest struct {
	Places []models.Place `json:"places"`
	Exempt bool           `json:"exempt"`
}

// StopResult is the finalized session and its score
type StopResult struct {
	Session *models.TrackingSession `json:"session"`
	Places  []models.Place          `json:"places"`
	Score   models.ScoringResult    `json:"score"`
	Profile stats.TrackProfile      `json:"profile"`
}

// Stop finalizes the recording, scores it and queues it for sync. Places
// given here are scored after the places tagged during the recording.
func (s *RecordingService) Stop(ctx context.Context, req StopRequest) (*StopResult, error) {
	extra := make([]models.Place, 0, len(req.Places))
	for _, p := range req.Places {
		if err := p.Normalize(); err != nil {
			return nil, err
		}
		extra = append(extra, p)
	}

	session, err := s.current().Stop(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	for i := range extra {
		if extra[i].ID == "" {
			extra[i].ID = uuid.NewString()
		}
		if extra[i].CreatedAt == 0 {
			extra[i].CreatedAt = now
		}
	}

	places := append(append([]models.Place{}, session.Places...), extra...)
	result := s.score(session, places, req.Exempt)

	if err := s.attachScore(ctx, session, places, result); err != nil {
		log.Printf("[RecordingService] Failed to store score of %s: %v", session.ID, err)
	} else {
		s.syncAsync(session.ID)
	}

	log.Printf("[RecordingService] Session %s scored %.1f points", session.ID, result.TotalPoints)

	return &StopResult{
		Session: session,
		Places:  places,
		Score:   result,
		Profile: stats.Profile(session.Fixes),
	}, nil
}

func (s *RecordingService) score(session *models.TrackingSession, places []models.Place, exempt bool) models.ScoringResult {
	distance := session.TotalDistance
	duration := float64(session.ActiveDurationMs(0)) / 1000
	summary := models.TrackSummary{
		Fixes:          session.Fixes,
		TotalDistanceM: &distance,
		DurationSec:    &duration,
	}
	return scoring.ComputeScore(summary, places, s.scoring.Config, exempt, s.scoring.ThemeKeywords)
}

// attachScore stores the score with the archive entry. When finalization
// could not archive the session, it is archived here; the inactive record
// left in the active slot is overwritten by the next recording.
func (s *RecordingService) attachScore(ctx context.Context, session *models.TrackingSession, places []models.Place, result models.ScoringResult) error {
	err := s.store.AttachScore(ctx, session.ID, places, result)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err := s.store.Archive(ctx, session); err != nil {
		return err
	}
	return s.store.AttachScore(ctx, session.ID, places, result)
}

func (s *RecordingService) syncAsync(sessionID string) {
	if s.syncer == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.syncer.SyncSession(context.Background(), sessionID); err != nil {
			log.Printf("[RecordingService] Sync of %s deferred: %v", sessionID, err)
		}
	}()
}

// Wait blocks until background syncs started by Stop have finished
func (s *RecordingService) Wait() {
	s.wg.Wait()
}

// Discard abandons the current recording
func (s *RecordingService) Discard(ctx context.Context) error {
	return s.current().Discard(ctx)
}

// StatusView is the recorder status plus recent recoverable events
type StatusView struct {
	recorder.Status
	Events      []recorder.Event `json:"events"`
	SyncEnabled bool             `json:"syncEnabled"`
}

// Status returns the current recorder status
func (s *RecordingService) Status() StatusView {
	st := s.current().Status()

	s.evMu.Lock()
	events := append([]recorder.Event{}, s.events...)
	s.evMu.Unlock()

	return StatusView{Status: st, Events: events, SyncEnabled: s.syncer != nil}
}

// Session returns the current session, or nil when nothing was recorded yet
func (s *RecordingService) Session() *models.TrackingSession {
	return s.current().Session()
}

// ScoreRequest is a stateless scoring request. Nil config and keywords use
// the configured rules.
type ScoreRequest struct {
	Track         models.TrackSummary   `json:"track"`
	Places        []models.Place        `json:"places"`
	Config        *models.ScoringConfig `json:"config,omitempty"`
	Exempt        bool                  `json:"exempt"`
	ThemeKeywords []string              `json:"themeKeywords,omitempty"`
}

// Score computes a score without touching any session
func (s *RecordingService) Score(req ScoreRequest) (models.ScoringResult, error) {
	for _, fix := range req.Track.Fixes {
		if err := fix.Validate(); err != nil {
			return models.ScoringResult{}, err
		}
	}
	for i := range req.Places {
		if err := req.Places[i].Normalize(); err != nil {
			return models.ScoringResult{}, err
		}
	}

	rules := s.scoring
	if req.Config != nil {
		rules.Config = *req.Config
		if err := rules.Validate(); err != nil {
			return models.ScoringResult{}, err
		}
	}
	if req.ThemeKeywords != nil {
		rules.ThemeKeywords = req.ThemeKeywords
	}
	rules = rules.Normalized()

	return scoring.ComputeScore(req.Track, req.Places, rules.Config, req.Exempt, rules.ThemeKeywords), nil
}

// ScoringRules returns the configured scoring rules
func (s *RecordingService) ScoringRules() config.Scoring {
	return s.scoring
}

// ListArchived returns archived sessions filtered by sync status
func (s *RecordingService) ListArchived(ctx context.Context, status models.SyncStatus) ([]models.CompletedSession, error) {
	switch status {
	case "", models.SyncStatusPending, models.SyncStatusSynced, models.SyncStatusFailed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.ListArchived(ctx, status)
}

// GetArchived returns one archived session
func (s *RecordingService) GetArchived(ctx context.Context, sessionID string) (*models.CompletedSession, error) {
	return s.store.GetArchived(ctx, sessionID)
}

// RetrySync is the manual retry of a failed session
func (s *RecordingService) RetrySync(ctx context.Context, sessionID string) error {
	if s.syncer == nil {
		return ErrSyncDisabled
	}
	entry, err := s.store.GetArchived(ctx, sessionID)
	if err != nil {
		return err
	}
	if entry.Score == nil {
		if err := s.scoreArchived(ctx, entry); err != nil {
			return err
		}
	}
	return s.syncer.Retry(ctx, sessionID)
}

// DeleteArchived removes an archived session
func (s *RecordingService) DeleteArchived(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}
