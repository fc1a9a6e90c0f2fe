package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/database"
	"github.com/jengzang/trailscore-backend-go/internal/models"
)

var (
	// ErrSlotOccupied is returned when saving a session while a different
	// session holds the active slot
	ErrSlotOccupied = errors.New("active session slot is held by another session")
	// ErrNotFound is returned for unknown archive entries
	ErrNotFound = errors.New("session not found")
)

// SessionRepository persists tracking sessions in SQLite: one active slot
// plus the archive of finalized sessions awaiting sync
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Save overwrites the active record. The write is an upsert on the single
// slot, guarded so a different session id cannot replace an active one.
func (r *SessionRepository) Save(ctx context.Context, session *models.TrackingSession) error {
	payload, err := encodeSession(session)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO active_session (slot, session_id, payload, version, last_update, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (slot) DO UPDATE SET
			session_id = excluded.session_id,
			payload = excluded.payload,
			version = excluded.version,
			last_update = excluded.last_update,
			updated_at = CURRENT_TIMESTAMP
		WHERE active_session.session_id = excluded.session_id
		   OR json_extract(active_session.payload, '$.isActive') = 0`,
		session.ID, payload, session.Version, session.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	if n == 0 {
		return ErrSlotOccupied
	}
	return nil
}

// Load returns the active session, or nil when the slot is empty or holds
// a session that is no longer active
func (r *SessionRepository) Load(ctx context.Context) (*models.TrackingSession, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM active_session WHERE slot = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	session, err := decodeSession([]byte(payload))
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, nil
	}
	return session, nil
}

// Clear removes the active record
func (r *SessionRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM active_session`); err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// Archive appends a finalized session. Archiving the same session twice
// refreshes the stored payload and keeps the sync state.
func (r *SessionRepository) Archive(ctx context.Context, session *models.TrackingSession) error {
	return archive(ctx, r.db, session, r.now().UnixMilli())
}

// Finalize archives the session and clears the active slot in one transaction
func (r *SessionRepository) Finalize(ctx context.Context, session *models.TrackingSession) error {
	archivedAt := r.now().UnixMilli()
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := archive(ctx, tx, session, archivedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM active_session WHERE session_id = ?`, session.ID); err != nil {
			return fmt.Errorf("failed to clear active session: %w", err)
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func archive(ctx context.Context, db execer, session *models.TrackingSession, archivedAt int64) error {
	payload, err := encodeSession(session)
	if err != nil {
		return err
	}

	places, err := json.Marshal(nonNilPlaces(session.Places))
	if err != nil {
		return fmt.Errorf("failed to encode places: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO completed_sessions (session_id, payload, places_json, sync_status, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET payload = excluded.payload`,
		session.ID, payload, string(places), string(models.SyncStatusPending), archivedAt)
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", session.ID, err)
	}
	return nil
}

// AttachScore stores the places and scoring result of an archived session
func (r *SessionRepository) AttachScore(ctx context.Context, sessionID string, places []models.Place, result models.ScoringResult) error {
	placesJSON, err := json.Marshal(nonNilPlaces(places))
	if err != nil {
		return fmt.Errorf("failed to encode places: %w", err)
	}
	scoreJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE completed_sessions SET places_json = ?, score_json = ? WHERE session_id = ?`,
		string(placesJSON), string(scoreJSON), sessionID)
	if err != nil {
		return fmt.Errorf("failed to attach score to %s: %w", sessionID, err)
	}
	return expectOne(res, sessionID)
}

// ListArchived returns archived sessions, oldest first. An empty status
// returns every entry.
func (r *SessionRepository) ListArchived(ctx context.Context, status models.SyncStatus) ([]models.CompletedSession, error) {
	query := `SELECT payload, places_json, score_json, sync_status, sync_attempts, last_error, archived_at, synced_at
		FROM completed_sessions`
	var args []interface{}
	if status != "" {
		query += " WHERE sync_status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY archived_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived sessions: %w", err)
	}
	defer rows.Close()

	entries := []models.CompletedSession{}
	for rows.Next() {
		entry, err := scanCompleted(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archived sessions: %w", err)
	}
	return entries, nil
}

// GetArchived returns one archived session
func (r *SessionRepository) GetArchived(ctx context.Context, sessionID string) (*models.CompletedSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT payload, places_json, score_json, sync_status, sync_attempts, last_error, archived_at, synced_at
		FROM completed_sessions WHERE session_id = ?`, sessionID)

	entry, err := scanCompleted(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// MarkSynced records a confirmed upload
func (r *SessionRepository) MarkSynced(ctx context.Context, sessionID string, attempts int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE completed_sessions
		SET sync_status = ?, sync_attempts = ?, last_error = NULL, synced_at = ?
		WHERE session_id = ?`,
		string(models.SyncStatusSynced), attempts, r.now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", sessionID, err)
	}
	return expectOne(res, sessionID)
}

// MarkFailed records an upload that exhausted its attempts
func (r *SessionRepository) MarkFailed(ctx context.Context, sessionID string, attempts int, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE completed_sessions SET sync_status = ?, sync_attempts = ?, last_error = ?
		WHERE session_id = ?`,
		string(models.SyncStatusFailed), attempts, message, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", sessionID, err)
	}
	return expectOne(res, sessionID)
}

// ResetForRetry moves a failed session back to pending
func (r *SessionRepository) ResetForRetry(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE completed_sessions SET sync_status = ?, sync_attempts = 0 WHERE session_id = ?`,
		string(models.SyncStatusPending), sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", sessionID, err)
	}
	return expectOne(res, sessionID)
}

// Delete removes an archived session
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM completed_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", sessionID, err)
	}
	return expectOne(res, sessionID)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCompleted(row scanner) (*models.CompletedSession, error) {
	var (
		payload    string
		placesJSON sql.NullString
		scoreJSON  sql.NullString
		status     string
		lastError  sql.NullString
		syncedAt   sql.NullInt64
		entry      models.CompletedSession
	)

	err := row.Scan(&payload, &placesJSON, &scoreJSON, &status, &entry.SyncAttempts, &lastError, &entry.ArchivedAt, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan archived session: %w", err)
	}

	session, err := decodeSession([]byte(payload))
	if err != nil {
		return nil, err
	}
	entry.Session = *session
	entry.SyncStatus = models.SyncStatus(status)
	entry.Session.SyncStatus = entry.SyncStatus
	entry.LastError = lastError.String
	if syncedAt.Valid {
		v := syncedAt.Int64
		entry.SyncedAt = &v
	}

	entry.Places = []models.Place{}
	if placesJSON.Valid && placesJSON.String != "" {
		if err := json.Unmarshal([]byte(placesJSON.String), &entry.Places); err != nil {
			return nil, fmt.Errorf("failed to decode places: %w", err)
		}
	}
	if scoreJSON.Valid && scoreJSON.String != "" {
		var score models.ScoringResult
		if err := json.Unmarshal([]byte(scoreJSON.String), &score); err != nil {
			return nil, fmt.Errorf("failed to decode score: %w", err)
		}
		entry.Score = &score
	}

	return &entry, nil
}

func expectOne(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", sessionID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
