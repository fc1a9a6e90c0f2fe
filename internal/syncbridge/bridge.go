// Package syncbridge delivers finalized sessions to the review backend and
// tracks their sync status in the archive.
package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// ErrUnscored is returned for archive entries that have no score attached
// yet. They stay pending until the score is stored.
var ErrUnscored = errors.New("archived session has no score")

// ArchiveStore is the part of the session store the bridge works on
type ArchiveStore interface {
	ListArchived(ctx context.Context, status models.SyncStatus) ([]models.CompletedSession, error)
	GetArchived(ctx context.Context, sessionID string) (*models.CompletedSession, error)
	MarkSynced(ctx context.Context, sessionID string, attempts int) error
	MarkFailed(ctx context.Context, sessionID string, attempts int, message string) error
	ResetForRetry(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// Options tunes delivery
type Options struct {
	DeviceID    string
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles per attempt
	Backoff time.Duration
	// Prune deletes archive entries once the backend confirmed them
	Prune bool
}

// DefaultOptions returns the standard delivery options
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, Backoff: 2 * time.Second, Prune: true}
}

// Result counts the outcome of one SyncPending pass
type Result struct {
	Synced   int `json:"synced"`
	Failed   int `json:"failed"`
	Unscored int `json:"unscored"`
}

// Bridge uploads archived sessions. Deliveries are serialized so the
// background worker and explicit syncs never upload the same entry twice
// at once.
type Bridge struct {
	store    ArchiveStore
	uploader Uploader
	opts     Options

	mu sync.Mutex
}

// NewBridge creates a bridge
func NewBridge(store ArchiveStore, uploader Uploader, opts Options) *Bridge {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Bridge{store: store, uploader: uploader, opts: opts}
}

// SyncSession delivers one archived session. Synced entries are skipped.
func (b *Bridge) SyncSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncLocked(ctx, sessionID)
}

func (b *Bridge) syncLocked(ctx context.Context, sessionID string) error {
	entry, err := b.store.GetArchived(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load archived session %s: %w", sessionID, err)
	}
	if entry.SyncStatus == models.SyncStatusSynced {
		return nil
	}
	if entry.Score == nil {
		return fmt.Errorf("%w: %s", ErrUnscored, sessionID)
	}

	payload := Payload{
		DeviceID: b.opts.DeviceID,
		Session:  entry.Session,
		Places:   entry.Places,
		Score:    entry.Score,
	}

	var lastErr error
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, b.opts.Backoff<<(attempt-2)); err != nil {
				// Interrupted: the entry stays pending for the next pass
				return err
			}
		}

		lastErr = b.uploader.Upload(ctx, payload)
		if lastErr == nil {
			return b.markSynced(ctx, sessionID, attempt)
		}

		log.Printf("[SyncBridge] Upload of %s failed (attempt %d/%d): %v", sessionID, attempt, b.opts.MaxAttempts, lastErr)

		if errors.Is(lastErr, ErrRejected) {
			return b.markFailed(ctx, sessionID, attempt, lastErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return b.markFailed(ctx, sessionID, b.opts.MaxAttempts, lastErr)
}

func (b *Bridge) markSynced(ctx context.Context, sessionID string, attempts int) error {
	if err := b.store.MarkSynced(ctx, sessionID, attempts); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", sessionID, err)
	}
	log.Printf("[SyncBridge] Session %s synced", sessionID)

	if b.opts.Prune {
		if err := b.store.Delete(ctx, sessionID); err != nil {
			log.Printf("[SyncBridge] Failed to prune %s: %v", sessionID, err)
		}
	}
	return nil
}

func (b *Bridge) markFailed(ctx context.Context, sessionID string, attempts int, cause error) error {
	if err := b.store.MarkFailed(ctx, sessionID, attempts, cause.Error()); err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", sessionID, err)
	}
	return fmt.Errorf("sync of %s failed after %d attempts: %w", sessionID, attempts, cause)
}

// SyncPending delivers every pending archive entry, oldest first
func (b *Bridge) SyncPending(ctx context.Context) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res Result
	entries, err := b.store.ListArchived(ctx, models.SyncStatusPending)
	if err != nil {
		return res, fmt.Errorf("failed to list pending sessions: %w", err)
	}

	for _, entry := range entries {
		if err := b.syncLocked(ctx, entry.Session.ID); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(err, ErrUnscored) {
				res.Unscored++
				continue
			}
			res.Failed++
			continue
		}
		res.Synced++
	}
	return res, nil
}

// Retry moves a failed entry back to pending and delivers it
func (b *Bridge) Retry(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.ResetForRetry(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to reset %s: %w", sessionID, err)
	}
	return b.syncLocked(ctx, sessionID)
}

// Run syncs pending sessions immediately and then on every tick until ctx
// is canceled
func (b *Bridge) Run(ctx context.Context, interval time.Duration) {
	log.Printf("[SyncBridge] Worker started (interval=%s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := b.SyncPending(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("[SyncBridge] Sync pass failed: %v", err)
		} else if res.Synced > 0 || res.Failed > 0 || res.Unscored > 0 {
			log.Printf("[SyncBridge] Sync pass: %d synced, %d failed, %d unscored", res.Synced, res.Failed, res.Unscored)
		}

		select {
		case <-ctx.Done():
			log.Printf("[SyncBridge] Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
