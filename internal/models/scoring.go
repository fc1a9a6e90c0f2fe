package models

// ScoringConfig is the externally supplied rule set for one computation
type ScoringConfig struct {
	PointsPerKm            float64            `json:"pointsPerKm" yaml:"pointsPerKm"`
	MinDistanceKm          float64            `json:"minDistanceKm" yaml:"minDistanceKm"`
	RequireAtLeastOnePlace bool               `json:"requireAtLeastOnePlace" yaml:"requireAtLeastOnePlace"`
	PlaceTypePoints        map[string]float64 `json:"placeTypePoints" yaml:"placeTypePoints"`
}

// TrackSummary is the track input of the scoring engine. Explicit totals
// take precedence over values derived from the fixes.
type TrackSummary struct {
	Fixes          []GPSFix `json:"fixes,omitempty"`
	TotalDistanceM *float64 `json:"totalDistance,omitempty"` // meters
	DurationSec    *float64 `json:"duration,omitempty"`      // seconds
}

// ScoringResult is the fully derived output of one scoring computation
type ScoringResult struct {
	ScoringModel      string         `json:"scoringModel"`
	Config            ScoringConfig  `json:"config"`
	DistanceKm        float64        `json:"distanceKm"`
	DistancePoints    float64        `json:"distancePoints"`
	PlacePoints       float64        `json:"placePoints"`
	ThemeBonus        float64        `json:"themeBonus"`
	StartEndDistanceM float64        `json:"startEndDistance"`
	DistancePenalty   bool           `json:"distancePenalty"`
	PlaceCounts       map[string]int `json:"placeCounts"`
	PlaceNames        []string       `json:"placeNames"`
	TotalPoints       float64        `json:"totalPoints"`
	DurationMinutes   int64          `json:"durationMinutes"`
}
