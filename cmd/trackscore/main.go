// Command trackscore replays a GPX file through the track recorder and
// prints the finalized session summary and its score as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/scoring"
	"github.com/jengzang/trailscore-backend-go/internal/stats"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type summary struct {
	SessionID        string  `json:"sessionId"`
	Fixes            int     `json:"fixes"`
	ReplayedFixes    int     `json:"replayedFixes"`
	TotalDistanceM   float64 `json:"totalDistance"`
	TotalAscentM     float64 `json:"totalAscent"`
	TotalDescentM    float64 `json:"totalDescent"`
	MaxSpeed         float64 `json:"maxSpeed"`
	StartEndDistance float64 `json:"startEndDistance"`
}

type output struct {
	Summary summary              `json:"summary"`
	Profile stats.TrackProfile   `json:"profile"`
	Places  []models.Place       `json:"places"`
	Score   models.ScoringResult `json:"score"`
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("trackscore", pflag.ContinueOnError)
	gpxPath := fs.String("gpx", "", "GPX file to replay (required)")
	configPath := fs.String("config", "", "scoring rules YAML file")
	placesPath := fs.String("places", "", "JSON file with an array of tagged places")
	exempt := fs.Bool("exempt", false, "exempt the track from the loop closure penalty")
	keywords := fs.StringSlice("keywords", nil, "theme keywords, overrides the scoring file")
	minMovement := fs.Float64("min-movement", recorder.DefaultMinMovementM, "minimum movement between fixes in meters")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gpxPath == "" {
		return fmt.Errorf("--gpx is required")
	}

	rules, err := config.LoadScoring(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("keywords") {
		rules.ThemeKeywords = *keywords
	}

	places, err := loadPlaces(*placesPath)
	if err != nil {
		return err
	}

	source, err := resource.NewReplaySourceFromFile(*gpxPath)
	if err != nil {
		return err
	}
	source.Done = make(chan struct{})

	opts := recorder.DefaultOptions()
	opts.MinMovementM = *minMovement
	guard := resource.NewGuard(source, nil, nil, resource.DefaultWatchOptions)
	rec := recorder.New(repository.NewMemoryStore(), guard, recorder.RealClock(), opts)

	ctx := context.Background()
	if _, err := rec.Start(ctx); err != nil {
		return fmt.Errorf("failed to start replay: %w", err)
	}
	select {
	case <-source.Done:
	case <-time.After(time.Minute):
		return fmt.Errorf("replay did not finish")
	}

	session, err := rec.Stop(ctx)
	if err != nil {
		return err
	}

	distance := session.TotalDistance
	track := models.TrackSummary{Fixes: session.Fixes, TotalDistanceM: &distance}
	result := scoring.ComputeScore(track, places, rules.Config, *exempt, rules.ThemeKeywords)

	out := output{
		Summary: summary{
			SessionID:        session.ID,
			Fixes:            len(session.Fixes),
			ReplayedFixes:    len(source.Fixes()),
			TotalDistanceM:   session.TotalDistance,
			TotalAscentM:     session.TotalAscent,
			TotalDescentM:    session.TotalDescent,
			MaxSpeed:         session.MaxSpeed,
			StartEndDistance: result.StartEndDistanceM,
		},
		Profile: stats.Profile(session.Fixes),
		Places:  places,
		Score:   result,
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadPlaces(path string) ([]models.Place, error) {
	places := []models.Place{}
	if path == "" {
		return places, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read places: %w", err)
	}
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("failed to parse places: %w", err)
	}
	for i := range places {
		if err := places[i].Normalize(); err != nil {
			return nil, fmt.Errorf("place %d: %w", i, err)
		}
	}
	return places, nil
}
