// Package scoring converts a recorded track and its tagged places into a
// point score. Everything here is a pure function of its inputs.
package scoring

import (
	"math"
	"strings"

	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/spatial"
)

// ModelID identifies the scoring rules implemented by ComputeScore
const ModelID = "distance-places-v1"

const (
	// LoopClosureThresholdM is the start/end separation above which a
	// non-exempt track scores zero.
	LoopClosureThresholdM = 3000.0

	// ThemeBonusPoints is awarded once when any theme keyword matches.
	ThemeBonusPoints = 5.0
)

// ComputeScore scores a track and its places under config. Calling it twice
// with identical arguments yields identical results; malformed numbers flow
// through as NaN or 0 rather than failing.
func ComputeScore(track models.TrackSummary, places []models.Place, config models.ScoringConfig, exempt bool, themeKeywords []string) models.ScoringResult {
	var distanceM float64
	if track.TotalDistanceM != nil {
		distanceM = *track.TotalDistanceM
	} else {
		distanceM = spatial.CumulativeDistance(track.Fixes)
	}
	distanceKm := roundKm(distanceM / 1000)

	var durationSec float64
	if track.DurationSec != nil {
		durationSec = *track.DurationSec
	} else {
		durationSec = spatial.Duration(track.Fixes)
	}
	durationMinutes := int64(0)
	if durationSec > 0 && !math.IsInf(durationSec, 0) {
		durationMinutes = int64(math.Floor(durationSec / 60))
	}

	placeCounts := make(map[string]int)
	placeNames := make([]string, 0, len(places))
	for _, p := range places {
		placeCounts[p.Type]++
		placeNames = append(placeNames, p.Name)
	}

	startEnd := 0.0
	penalty := false
	if len(track.Fixes) >= 2 {
		startEnd = spatial.LoopClosureDistance(track.Fixes)
		if startEnd > LoopClosureThresholdM && !exempt {
			penalty = true
		}
	}

	bonus := 0.0
	if matchesTheme(places, themeKeywords) {
		bonus = ThemeBonusPoints
	}

	distancePoints := 0.0
	if distanceKm >= config.MinDistanceKm {
		distancePoints = distanceKm * config.PointsPerKm
	}

	placePoints := 0.0
	for _, p := range places {
		placePoints += config.PlaceTypePoints[p.Type]
	}

	total := 0.0
	if !config.RequireAtLeastOnePlace || len(places) > 0 {
		total = distancePoints + placePoints + bonus
	}
	if penalty {
		total = 0
	}

	return models.ScoringResult{
		ScoringModel:      ModelID,
		Config:            copyConfig(config),
		DistanceKm:        distanceKm,
		DistancePoints:    floorTenth(distancePoints),
		PlacePoints:       floorTenth(placePoints),
		ThemeBonus:        bonus,
		StartEndDistanceM: startEnd,
		DistancePenalty:   penalty,
		PlaceCounts:       placeCounts,
		PlaceNames:        placeNames,
		TotalPoints:       floorTenth(total),
		DurationMinutes:   durationMinutes,
	}
}

// matchesTheme reports whether any keyword occurs, case-insensitively, in
// the concatenated place descriptions. Empty keywords never match.
func matchesTheme(places []models.Place, keywords []string) bool {
	if len(places) == 0 || len(keywords) == 0 {
		return false
	}

	descriptions := make([]string, 0, len(places))
	for _, p := range places {
		descriptions = append(descriptions, p.Description)
	}
	text := strings.ToLower(strings.Join(descriptions, " "))

	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// roundKm rounds a kilometer value to 3 decimals
func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}

// floorTenth truncates toward negative infinity at one decimal place
func floorTenth(v float64) float64 {
	return math.Floor(v*10) / 10
}

func copyConfig(c models.ScoringConfig) models.ScoringConfig {
	if c.PlaceTypePoints == nil {
		return c
	}
	weights := make(map[string]float64, len(c.PlaceTypePoints))
	for t, w := range c.PlaceTypePoints {
		weights[t] = w
	}
	c.PlaceTypePoints = weights
	return c
}
