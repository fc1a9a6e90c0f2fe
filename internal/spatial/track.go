package spatial

import "github.com/jengzang/trailscore-backend-go/internal/models"

// FixDistance returns the great-circle distance in meters between two fixes
func FixDistance(a, b models.GPSFix) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// CumulativeDistance sums the distance over consecutive fixes, in meters
func CumulativeDistance(fixes []models.GPSFix) float64 {
	if len(fixes) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(fixes); i++ {
		total += FixDistance(fixes[i-1], fixes[i])
	}
	return total
}

// LoopClosureDistance returns the straight-line distance between the first
// and last fix, in meters. Returns 0 for fewer than 2 fixes.
func LoopClosureDistance(fixes []models.GPSFix) float64 {
	if len(fixes) < 2 {
		return 0
	}
	return FixDistance(fixes[0], fixes[len(fixes)-1])
}

// Duration returns the time between the first and last fix, in seconds.
// Returns 0 for fewer than 2 fixes or when either timestamp is missing.
func Duration(fixes []models.GPSFix) float64 {
	if len(fixes) < 2 {
		return 0
	}
	first := fixes[0].Timestamp
	last := fixes[len(fixes)-1].Timestamp
	if first <= 0 || last <= 0 {
		return 0
	}
	return float64(last-first) / 1000
}
