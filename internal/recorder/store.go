package recorder

import (
	"context"

	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
)

// SessionStore persists the single active session and the archive of
// finalized sessions
type SessionStore interface {
	// Save overwrites the active record; safe to call after every fix
	Save(ctx context.Context, session *models.TrackingSession) error
	// Load returns the active session, or nil
	Load(ctx context.Context) (*models.TrackingSession, error)
	// Clear removes the active record
	Clear(ctx context.Context) error
	// Archive appends a finalized session to the completed-but-unsynced list
	Archive(ctx context.Context, session *models.TrackingSession) error
}

// Finalizer is implemented by stores that can archive a session and clear
// the active slot atomically
type Finalizer interface {
	Finalize(ctx context.Context, session *models.TrackingSession) error
}

// ResourceGuard acquires and releases the host location watch and wake lock
type ResourceGuard interface {
	Acquire(ctx context.Context, handler resource.FixHandler) (resource.AcquireReport, error)
	Release() error
	WakeLockHeld() bool
	Battery(ctx context.Context) *models.BatteryInfo
}
