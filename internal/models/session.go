package models

// SessionSchemaVersion is written into every persisted session record
const SessionSchemaVersion = "1.1"

// SyncStatus is the delivery state of a finalized session
type SyncStatus string

// SyncStatus constants
const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// DeviceInfo is captured once when a session is created and never mutated
type DeviceInfo struct {
	Platform         string `json:"platform,omitempty"`
	UserAgent        string `json:"userAgent,omitempty"`
	Locale           string `json:"locale,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	NetworkType      string `json:"networkType,omitempty"`
}

// TrackingSession is the aggregate root of one recording
type TrackingSession struct {
	ID        string `json:"id"`
	StartTime int64  `json:"startTime"`         // Unix milliseconds
	EndTime   *int64 `json:"endTime,omitempty"` // set only when stopped

	Fixes  []GPSFix `json:"fixes"`
	Places []Place  `json:"places,omitempty"`

	// Running aggregates
	TotalDistance  float64 `json:"totalDistance"`            // meters
	AverageSpeed   float64 `json:"averageSpeed"`             // m/s over active time
	MaxSpeed       float64 `json:"maxSpeed"`                 // m/s
	TotalAscent    float64 `json:"totalAscent"`              // meters
	TotalDescent   float64 `json:"totalDescent"`             // meters
	PausedDuration int64   `json:"pausedDuration"`           // milliseconds
	PauseStartedAt *int64  `json:"pauseStartedAt,omitempty"` // Unix milliseconds

	IsActive   bool  `json:"isActive"`
	IsPaused   bool  `json:"isPaused"`
	LastUpdate int64 `json:"lastUpdate"` // Unix milliseconds

	Device DeviceInfo `json:"device"`

	SyncStatus SyncStatus `json:"syncStatus"`
	Version    string     `json:"version"`
}

// LastFix returns the most recently accepted fix
func (s *TrackingSession) LastFix() (GPSFix, bool) {
	if len(s.Fixes) == 0 {
		return GPSFix{}, false
	}
	return s.Fixes[len(s.Fixes)-1], true
}

// ActiveDurationMs returns elapsed time minus all pause intervals. For a
// session that is still running, now closes the open interval.
func (s *TrackingSession) ActiveDurationMs(now int64) int64 {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	paused := s.PausedDuration
	if s.IsPaused && s.PauseStartedAt != nil && end > *s.PauseStartedAt {
		paused += end - *s.PauseStartedAt
	}
	active := end - s.StartTime - paused
	if active < 0 {
		return 0
	}
	return active
}

// Clone returns a deep copy that shares no slices or pointers with s
func (s *TrackingSession) Clone() *TrackingSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		v := *s.EndTime
		c.EndTime = &v
	}
	if s.PauseStartedAt != nil {
		v := *s.PauseStartedAt
		c.PauseStartedAt = &v
	}
	if s.Fixes != nil {
		c.Fixes = make([]GPSFix, len(s.Fixes))
		for i, f := range s.Fixes {
			c.Fixes[i] = f.clone()
		}
	}
	if s.Places != nil {
		c.Places = make([]Place, len(s.Places))
		for i, p := range s.Places {
			c.Places[i] = p.clone()
		}
	}
	return &c
}

// Migrate upgrades a decoded record to the current schema. Records written
// before versioning carry no version and no sync status.
func (s *TrackingSession) Migrate() {
	if s.SyncStatus == "" {
		s.SyncStatus = SyncStatusPending
	}
	if s.Fixes == nil {
		s.Fixes = []GPSFix{}
	}
	if !s.IsActive {
		s.IsPaused = false
	}
	if !s.IsPaused {
		s.PauseStartedAt = nil
	}
	s.Version = SessionSchemaVersion
}

// CompletedSession is an archived, finalized session awaiting sync
type CompletedSession struct {
	Session      TrackingSession `json:"session"`
	Places       []Place         `json:"places"`
	Score        *ScoringResult  `json:"score,omitempty"`
	SyncStatus   SyncStatus      `json:"syncStatus"`
	SyncAttempts int             `json:"syncAttempts"`
	LastError    string          `json:"lastError,omitempty"`
	ArchivedAt   int64           `json:"archivedAt"`         // Unix milliseconds
	SyncedAt     *int64          `json:"syncedAt,omitempty"` // Unix milliseconds
}
