package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// MemoryStore keeps sessions in process memory. Records are stored in
// their encoded form so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	active   []byte
	archive  map[string]*memoryEntry
	sequence int64
	now      func() time.Time

	// SaveErr, when set, is returned by Save to simulate storage failures
	SaveErr error
}

type memoryEntry struct {
	seq    int64
	record models.CompletedSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		archive: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Save overwrites the active record
func (m *MemoryStore) Save(ctx context.Context, session *models.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.active != nil {
		current, err := decodeSession(m.active)
		if err == nil && current.IsActive && current.ID != session.ID {
			return ErrSlotOccupied
		}
	}

	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	m.active = data
	return nil
}

// Load returns the active session, or nil
func (m *MemoryStore) Load(ctx context.Context) (*models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, nil
	}
	session, err := decodeSession(m.active)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, nil
	}
	return session, nil
}

// Clear removes the active record
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	return nil
}

// ActiveRecord returns the raw stored active record
func (m *MemoryStore) ActiveRecord() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.active...)
}

// Archive appends a finalized session
func (m *MemoryStore) Archive(ctx context.Context, session *models.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied, err := roundTrip(session)
	if err != nil {
		return err
	}

	if entry, ok := m.archive[session.ID]; ok {
		entry.record.Session = *copied
		entry.record.Session.SyncStatus = entry.record.SyncStatus
		return nil
	}

	m.sequence++
	places := nonNilPlaces(copied.Places)
	m.archive[session.ID] = &memoryEntry{
		seq: m.sequence,
		record: models.CompletedSession{
			Session:    *copied,
			Places:     places,
			SyncStatus: models.SyncStatusPending,
			ArchivedAt: m.now().UnixMilli(),
		},
	}
	return nil
}

// AttachScore stores the places and scoring result of an archived session
func (m *MemoryStore) AttachScore(ctx context.Context, sessionID string, places []models.Place, result models.ScoringResult) error {
	return m.update(sessionID, func(e *models.CompletedSession) {
		e.Places = append([]models.Place{}, places...)
		score := result
		e.Score = &score
	})
}

// ListArchived returns archived sessions in archive order
func (m *MemoryStore) ListArchived(ctx context.Context, status models.SyncStatus) ([]models.CompletedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*memoryEntry, 0, len(m.archive))
	for _, e := range m.archive {
		if status == "" || e.record.SyncStatus == status {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]models.CompletedSession, 0, len(entries))
	for _, e := range entries {
		c, err := copyCompleted(e.record)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// GetArchived returns one archived session
func (m *MemoryStore) GetArchived(ctx context.Context, sessionID string) (*models.CompletedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.archive[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	c, err := copyCompleted(e.record)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkSynced records a confirmed upload
func (m *MemoryStore) MarkSynced(ctx context.Context, sessionID string, attempts int) error {
	at := m.now().UnixMilli()
	return m.update(sessionID, func(e *models.CompletedSession) {
		e.SyncStatus = models.SyncStatusSynced
		e.SyncAttempts = attempts
		e.LastError = ""
		e.SyncedAt = &at
	})
}

// MarkFailed records an upload that exhausted its attempts
func (m *MemoryStore) MarkFailed(ctx context.Context, sessionID string, attempts int, message string) error {
	return m.update(sessionID, func(e *models.CompletedSession) {
		e.SyncStatus = models.SyncStatusFailed
		e.SyncAttempts = attempts
		e.LastError = message
	})
}

// ResetForRetry moves a failed session back to pending
func (m *MemoryStore) ResetForRetry(ctx context.Context, sessionID string) error {
	return m.update(sessionID, func(e *models.CompletedSession) {
		e.SyncStatus = models.SyncStatusPending
		e.SyncAttempts = 0
	})
}

// Delete removes an archived session
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.archive[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.archive, sessionID)
	return nil
}

func (m *MemoryStore) update(sessionID string, fn func(*models.CompletedSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.archive[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(&e.record)
	e.record.Session.SyncStatus = e.record.SyncStatus
	return nil
}

func roundTrip(session *models.TrackingSession) (*models.TrackingSession, error) {
	data, err := encodeSession(session)
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

func copyCompleted(c models.CompletedSession) (models.CompletedSession, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return models.CompletedSession{}, fmt.Errorf("failed to copy archived session: %w", err)
	}
	var out models.CompletedSession
	if err := json.Unmarshal(data, &out); err != nil {
		return models.CompletedSession{}, fmt.Errorf("failed to copy archived session: %w", err)
	}
	return out, nil
}
