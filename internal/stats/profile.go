// Package stats derives descriptive statistics from a recorded track
package stats

import (
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/spatial"
)

// TrackProfile summarizes the pace and signal quality of a track
type TrackProfile struct {
	Segments        int     `json:"segments"`
	MeanSpeed       float64 `json:"meanSpeed"`      // m/s, per segment
	MedianSpeed     float64 `json:"medianSpeed"`    // m/s
	P95Speed        float64 `json:"p95Speed"`       // m/s
	MedianAccuracyM float64 `json:"medianAccuracy"` // meters
	MaxGapSec       float64 `json:"maxGap"`         // longest interval between fixes, seconds
	Heading         float64 `json:"heading"`        // start to end bearing, degrees
}

// Profile computes the profile of consecutive fixes. Segments with a
// non-positive time step are skipped.
func Profile(fixes []models.GPSFix) TrackProfile {
	var p TrackProfile
	if len(fixes) == 0 {
		return p
	}

	accuracies := make([]float64, 0, len(fixes))
	for _, f := range fixes {
		accuracies = append(accuracies, f.Accuracy)
	}
	p.MedianAccuracyM = Median(accuracies)

	speeds := make([]float64, 0, len(fixes))
	for i := 1; i < len(fixes); i++ {
		dt := float64(fixes[i].Timestamp-fixes[i-1].Timestamp) / 1000
		if dt <= 0 {
			continue
		}
		if dt > p.MaxGapSec {
			p.MaxGapSec = dt
		}
		speeds = append(speeds, spatial.FixDistance(fixes[i-1], fixes[i])/dt)
	}

	first, last := fixes[0], fixes[len(fixes)-1]
	if len(fixes) > 1 {
		p.Heading = spatial.Bearing(first.Latitude, first.Longitude, last.Latitude, last.Longitude)
	}

	p.Segments = len(speeds)
	p.MeanSpeed = Mean(speeds)
	p.MedianSpeed = Median(speeds)
	p.P95Speed = Quantile(speeds, 0.95)
	return p
}
