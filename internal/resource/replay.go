package resource

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// ReplaySource replays the track points of a GPX document as a location
// watch. Speedup scales the pacing between points; zero delivers them
// without waiting.
type ReplaySource struct {
	fixes   []models.GPSFix
	Speedup float64
	// Done, when set, is closed after the last fix has been delivered or
	// the watch was canceled.
	Done chan struct{}
}

// NewReplaySourceFromFile parses a GPX file
func NewReplaySourceFromFile(path string) (*ReplaySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gpx file: %w", err)
	}
	return NewReplaySource(data)
}

// NewReplaySource parses GPX bytes into fixes. Points without a timestamp
// are skipped because the recorder orders fixes by time.
func NewReplaySource(data []byte) (*ReplaySource, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}

	var fixes []models.GPSFix
	skipped := 0
	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for _, point := range segment.Points {
				if point.Timestamp.IsZero() {
					skipped++
					continue
				}
				fix := models.GPSFix{
					Latitude:  point.Latitude,
					Longitude: point.Longitude,
					Timestamp: point.Timestamp.UnixMilli(),
				}
				if point.Elevation.NotNull() {
					fix.Altitude = models.Float64(point.Elevation.Value())
				}
				if point.HorizontalDilution.NotNull() {
					// HDOP times a nominal 5 m user range error
					fix.Accuracy = point.HorizontalDilution.Value() * 5
				}
				fixes = append(fixes, fix)
			}
		}
	}

	if skipped > 0 {
		log.Printf("[ReplaySource] Skipped %d points without timestamp", skipped)
	}

	return &ReplaySource{fixes: fixes}, nil
}

// Fixes returns the parsed fixes
func (r *ReplaySource) Fixes() []models.GPSFix {
	return r.fixes
}

// Watch starts delivering fixes on a separate goroutine
func (r *ReplaySource) Watch(ctx context.Context, handler FixHandler, opts WatchOptions) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	go r.run(ctx, handler)
	return &replaySubscription{cancel: cancel}, nil
}

func (r *ReplaySource) run(ctx context.Context, handler FixHandler) {
	if r.Done != nil {
		defer close(r.Done)
	}

	for i, fix := range r.fixes {
		if i > 0 && r.Speedup > 0 {
			gap := time.Duration(fix.Timestamp-r.fixes[i-1].Timestamp) * time.Millisecond
			wait := time.Duration(float64(gap) / r.Speedup)
			if wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := fix.Validate(); err != nil {
			if handler.OnError != nil {
				handler.OnError(&SensorError{Code: PositionUnavailable, Message: err.Error()})
			}
			continue
		}
		if handler.OnFix != nil {
			handler.OnFix(fix)
		}
	}
}

type replaySubscription struct {
	cancel context.CancelFunc
}

// Cancel stops the replay without waiting for the delivery goroutine
func (s *replaySubscription) Cancel() error {
	s.cancel()
	return nil
}
