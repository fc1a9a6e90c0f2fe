package repository

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jengzang/trailscore-backend-go/internal/database"
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/syncbridge"
)

var (
	_ recorder.SessionStore   = (*SessionRepository)(nil)
	_ recorder.Finalizer      = (*SessionRepository)(nil)
	_ recorder.SessionStore   = (*MemoryStore)(nil)
	_ syncbridge.ArchiveStore = (*SessionRepository)(nil)
	_ syncbridge.ArchiveStore = (*MemoryStore)(nil)
)

type store interface {
	recorder.SessionStore
	syncbridge.ArchiveStore
	AttachScore(ctx context.Context, sessionID string, places []models.Place, result models.ScoringResult) error
	Delete(ctx context.Context, sessionID string) error
}

func newSQLiteRepository(t *testing.T) *SessionRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "sessions.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionRepository(db)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteRepository(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func sampleSession(id string) *models.TrackingSession {
	paused := int64(1_700_000_030_000)
	return &models.TrackingSession{
		ID:        id,
		StartTime: 1_700_000_000_000,
		Fixes: []models.GPSFix{
			{Latitude: 46.0, Longitude: 7.0, Accuracy: 5, Timestamp: 1_700_000_001_000, Altitude: models.Float64(1000)},
			{Latitude: 46.001, Longitude: 7.0, Accuracy: 4, Timestamp: 1_700_000_011_000, Speed: models.Float64(1.5),
				Battery: &models.BatteryInfo{Level: 0.8}},
		},
		Places:         []models.Place{{ID: "p1", Name: "Cairn", Type: models.PlaceTypePeak, Photos: []string{"a.jpg"}}},
		TotalDistance:  111.19,
		PausedDuration: 2_000,
		PauseStartedAt: &paused,
		IsActive:       true,
		IsPaused:       true,
		LastUpdate:     1_700_000_030_000,
		Device:         models.DeviceInfo{Platform: "android", Locale: "de-CH", Timezone: "Europe/Zurich"},
		SyncStatus:     models.SyncStatusPending,
		Version:        models.SessionSchemaVersion,
	}
}

func finalized(s *models.TrackingSession) *models.TrackingSession {
	end := s.LastUpdate + 1000
	s.EndTime = &end
	s.IsActive = false
	s.IsPaused = false
	s.PauseStartedAt = nil
	return s
}

func TestSaveLoad(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		got, err := s.Load(ctx)
		if err != nil || got != nil {
			t.Fatalf("empty load = %v, %v", got, err)
		}

		session := sampleSession("s1")
		if err := s.Save(ctx, session); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err = s.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got == nil || got.ID != "s1" || !got.IsPaused || len(got.Fixes) != 2 {
			t.Fatalf("loaded %+v", got)
		}
		if got.Fixes[1].Speed == nil || *got.Fixes[1].Speed != 1.5 || got.Fixes[0].Speed != nil {
			t.Errorf("optional fields not preserved: %+v", got.Fixes)
		}

		// Saving the same session again overwrites it
		session.TotalDistance = 222
		if err := s.Save(ctx, session); err != nil {
			t.Fatalf("resave: %v", err)
		}
		got, _ = s.Load(ctx)
		if got.TotalDistance != 222 {
			t.Errorf("TotalDistance = %v, want 222", got.TotalDistance)
		}

		if err := s.Clear(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got, _ := s.Load(ctx); got != nil {
			t.Errorf("load after clear = %+v", got)
		}
	})
}

func TestSaveRejectsSecondActiveSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		if err := s.Save(ctx, sampleSession("first")); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := s.Save(ctx, sampleSession("second")); !errors.Is(err, ErrSlotOccupied) {
			t.Fatalf("got %v, want ErrSlotOccupied", err)
		}

		// A session that is no longer active gives the slot up
		if err := s.Save(ctx, finalized(sampleSession("first"))); err != nil {
			t.Fatalf("save finalized: %v", err)
		}
		if err := s.Save(ctx, sampleSession("second")); err != nil {
			t.Fatalf("save after finalize: %v", err)
		}
	})
}

func TestSQLiteRoundTripStable(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	readPayload := func() []byte {
		var payload string
		if err := repo.db.QueryRow(`SELECT payload FROM active_session WHERE slot = 1`).Scan(&payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
		return []byte(payload)
	}

	if err := repo.Save(ctx, sampleSession("stable")); err != nil {
		t.Fatalf("save: %v", err)
	}
	first := readPayload()

	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("resave: %v", err)
	}
	second := readPayload()

	if !bytes.Equal(first, second) {
		t.Errorf("record changed across reload:\n%s\n%s", first, second)
	}
}

func TestMemoryRoundTripStable(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Save(ctx, sampleSession("stable")); err != nil {
		t.Fatalf("save: %v", err)
	}
	first := m.ActiveRecord()
	loaded, _ := m.Load(ctx)
	if err := m.Save(ctx, loaded); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if second := m.ActiveRecord(); !bytes.Equal(first, second) {
		t.Errorf("record changed across reload:\n%s\n%s", first, second)
	}
}

func TestLoadToleratesOlderAndNewerRecords(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	payload := `{
		"id": "legacy",
		"startTime": 1700000000000,
		"fixes": [{"latitude": 46, "longitude": 7, "accuracy": 10, "timestamp": 1700000001000, "satellites": 9}],
		"isActive": true,
		"lastUpdate": 1700000001000,
		"futureField": {"nested": true}
	}`
	_, err := repo.db.Exec(`INSERT INTO active_session (slot, session_id, payload, version, last_update)
		VALUES (1, 'legacy', ?, '', 1700000001000)`, payload)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != models.SessionSchemaVersion {
		t.Errorf("Version = %q", got.Version)
	}
	if got.SyncStatus != models.SyncStatusPending {
		t.Errorf("SyncStatus = %q", got.SyncStatus)
	}
	if len(got.Fixes) != 1 || got.Fixes[0].Altitude != nil {
		t.Errorf("fixes = %+v", got.Fixes)
	}
}

func TestArchiveLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		session := finalized(sampleSession("done"))

		if err := s.Archive(ctx, session); err != nil {
			t.Fatalf("archive: %v", err)
		}
		// Duplicate delivery keeps a single entry
		if err := s.Archive(ctx, session); err != nil {
			t.Fatalf("archive again: %v", err)
		}

		pending, err := s.ListArchived(ctx, models.SyncStatusPending)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(pending) != 1 || pending[0].Session.ID != "done" {
			t.Fatalf("pending = %+v", pending)
		}
		if len(pending[0].Places) != 1 {
			t.Errorf("places = %+v", pending[0].Places)
		}

		result := models.ScoringResult{ScoringModel: "test", TotalPoints: 4.2, PlaceCounts: map[string]int{"PEAK": 1}}
		if err := s.AttachScore(ctx, "done", session.Places, result); err != nil {
			t.Fatalf("attach: %v", err)
		}

		if err := s.MarkFailed(ctx, "done", 3, "timeout"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		entry, err := s.GetArchived(ctx, "done")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if entry.SyncStatus != models.SyncStatusFailed || entry.SyncAttempts != 3 || entry.LastError != "timeout" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.Score == nil || entry.Score.TotalPoints != 4.2 {
			t.Errorf("score = %+v", entry.Score)
		}

		if err := s.ResetForRetry(ctx, "done"); err != nil {
			t.Fatalf("reset: %v", err)
		}
		if err := s.MarkSynced(ctx, "done", 1); err != nil {
			t.Fatalf("mark synced: %v", err)
		}
		entry, _ = s.GetArchived(ctx, "done")
		if entry.SyncStatus != models.SyncStatusSynced || entry.SyncedAt == nil || entry.LastError != "" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.Session.SyncStatus != models.SyncStatusSynced {
			t.Errorf("session sync status = %q", entry.Session.SyncStatus)
		}

		if err := s.Delete(ctx, "done"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetArchived(ctx, "done"); !errors.Is(err, ErrNotFound) {
			t.Errorf("get after delete: %v", err)
		}
		if err := s.MarkSynced(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("mark missing: %v", err)
		}
	})
}

func TestFinalizeClearsSlot(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	session := sampleSession("final")
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Finalize(ctx, finalized(session)); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if got, _ := repo.Load(ctx); got != nil {
		t.Errorf("active slot still holds %s", got.ID)
	}
	all, err := repo.ListArchived(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Session.EndTime == nil {
		t.Errorf("archive = %+v", all)
	}
}
