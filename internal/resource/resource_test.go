package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

type failingLocker struct{ err error }

func (f failingLocker) RequestWakeLock(ctx context.Context) (WakeLock, error) {
	return nil, f.err
}

type failingSource struct{}

func (failingSource) Watch(ctx context.Context, handler FixHandler, opts WatchOptions) (Subscription, error) {
	return nil, &SensorError{Code: PermissionDenied}
}

func TestGuardAcquireRelease(t *testing.T) {
	source := NewPushSource()
	locker := NewLeaseLocker()
	guard := NewGuard(source, locker, nil, DefaultWatchOptions)

	report, err := guard.Acquire(context.Background(), FixHandler{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !report.Watching || !report.WakeLockHeld || report.WakeLockErr != nil {
		t.Errorf("unexpected report: %+v", report)
	}
	if !source.Watching() || !guard.WakeLockHeld() {
		t.Error("resources not held after acquire")
	}

	if _, err := guard.Acquire(context.Background(), FixHandler{}); !errors.Is(err, ErrResourceBusy) {
		t.Errorf("second acquire: got %v, want ErrResourceBusy", err)
	}

	if err := guard.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if source.Watching() || guard.Held() {
		t.Error("resources still held after release")
	}
	if held, _ := locker.Held(); held {
		t.Error("lease still held after release")
	}

	// Releasing again is a no-op
	if err := guard.Release(); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestGuardWithoutLocation(t *testing.T) {
	guard := NewGuard(nil, NewLeaseLocker(), nil, DefaultWatchOptions)
	if _, err := guard.Acquire(context.Background(), FixHandler{}); !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("got %v, want ErrLocationUnavailable", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("release without acquire: %v", err)
	}
}

func TestGuardWatchFailure(t *testing.T) {
	guard := NewGuard(failingSource{}, nil, nil, DefaultWatchOptions)
	_, err := guard.Acquire(context.Background(), FixHandler{})

	var sensorErr *SensorError
	if !errors.As(err, &sensorErr) || sensorErr.Code != PermissionDenied {
		t.Fatalf("got %v, want permission denied", err)
	}
	if guard.Held() {
		t.Error("guard held after failed watch")
	}
}

func TestGuardWakeLockFailureIsNotFatal(t *testing.T) {
	tests := []struct {
		name   string
		locker WakeLocker
		want   error
	}{
		{"unsupported", nil, ErrWakeLockUnsupported},
		{"denied", failingLocker{err: errors.New("denied")}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			guard := NewGuard(NewPushSource(), tc.locker, nil, DefaultWatchOptions)
			report, err := guard.Acquire(context.Background(), FixHandler{})
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}
			if !report.Watching || report.WakeLockHeld {
				t.Errorf("unexpected report: %+v", report)
			}
			if report.WakeLockErr == nil {
				t.Fatal("expected wake lock error in report")
			}
			if tc.want != nil && !errors.Is(report.WakeLockErr, tc.want) {
				t.Errorf("WakeLockErr = %v, want %v", report.WakeLockErr, tc.want)
			}
		})
	}
}

func TestPushSourceDelivery(t *testing.T) {
	source := NewPushSource()
	if err := source.Push(models.GPSFix{}); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("push without watch: %v", err)
	}

	var got []models.GPSFix
	var gotErr error
	sub, err := source.Watch(context.Background(), FixHandler{
		OnFix:   func(f models.GPSFix) { got = append(got, f) },
		OnError: func(err error) { gotErr = err },
	}, DefaultWatchOptions)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, err := source.Watch(context.Background(), FixHandler{}, DefaultWatchOptions); !errors.Is(err, ErrResourceBusy) {
		t.Errorf("second watch: %v", err)
	}

	_ = source.Push(models.GPSFix{Latitude: 1, Timestamp: 10})
	_ = source.ReportError(&SensorError{Code: Timeout})
	if len(got) != 1 || got[0].Timestamp != 10 {
		t.Errorf("fixes = %+v", got)
	}
	var sensorErr *SensorError
	if !errors.As(gotErr, &sensorErr) || sensorErr.Code != Timeout {
		t.Errorf("error = %v", gotErr)
	}

	_ = sub.Cancel()
	if err := source.Push(models.GPSFix{}); !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("push after cancel: %v", err)
	}
}

func TestPushSourceStaleCancel(t *testing.T) {
	source := NewPushSource()
	first, _ := source.Watch(context.Background(), FixHandler{}, DefaultWatchOptions)
	_ = first.Cancel()
	if _, err := source.Watch(context.Background(), FixHandler{}, DefaultWatchOptions); err != nil {
		t.Fatalf("rewatch: %v", err)
	}

	_ = first.Cancel()
	if !source.Watching() {
		t.Error("stale cancel closed the new watch")
	}
}

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>ridge</name><trkseg>
    <trkpt lat="46.0000" lon="7.0000"><ele>1000</ele><time>2024-10-01T08:00:00Z</time><hdop>1.2</hdop></trkpt>
    <trkpt lat="46.0010" lon="7.0000"><ele>1010</ele><time>2024-10-01T08:01:00Z</time></trkpt>
    <trkpt lat="46.0020" lon="7.0000"></trkpt>
    <trkpt lat="46.0030" lon="7.0000"><ele>1005</ele><time>2024-10-01T08:03:00Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func TestReplaySource(t *testing.T) {
	source, err := NewReplaySource([]byte(sampleGPX))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n := len(source.Fixes()); n != 3 {
		t.Fatalf("parsed %d fixes, want 3", n)
	}
	first := source.Fixes()[0]
	if first.Altitude == nil || *first.Altitude != 1000 {
		t.Errorf("altitude = %v", first.Altitude)
	}
	if first.Accuracy != 6 {
		t.Errorf("accuracy = %v, want 6", first.Accuracy)
	}
	if first.Timestamp != time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("timestamp = %v", first.Timestamp)
	}

	source.Done = make(chan struct{})
	var mu sync.Mutex
	var got []models.GPSFix
	_, err = source.Watch(context.Background(), FixHandler{OnFix: func(f models.GPSFix) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	}}, DefaultWatchOptions)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case <-source.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Errorf("delivered %d fixes, want 3", len(got))
	}
}

func TestReplaySourceInvalidDocument(t *testing.T) {
	if _, err := NewReplaySource([]byte("not xml")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLeaseLocker(t *testing.T) {
	locker := NewLeaseLocker()
	lock, err := locker.RequestWakeLock(context.Background())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := locker.RequestWakeLock(context.Background()); !errors.Is(err, ErrResourceBusy) {
		t.Errorf("second request: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lock.Release(); !errors.Is(err, ErrWakeLockReleased) {
		t.Errorf("double release: %v", err)
	}

	next, err := locker.RequestWakeLock(context.Background())
	if err != nil {
		t.Fatalf("request after release: %v", err)
	}
	// A stale lease must not free the new one
	_ = lock.Release()
	if held, _ := locker.Held(); !held {
		t.Error("stale release freed the current lease")
	}
	_ = next.Release()
}

func TestSysfsBattery(t *testing.T) {
	root := t.TempDir()
	reader := &SysfsBattery{Root: root}

	info, err := reader.BatteryInfo(context.Background())
	if err != nil || info != nil {
		t.Fatalf("no battery: got %v, %v", info, err)
	}

	dir := filepath.Join(root, "BAT0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "capacity"), []byte("73\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte("Charging\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err = reader.BatteryInfo(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if info.Level != 0.73 || !info.Charging {
		t.Errorf("info = %+v", info)
	}
}
