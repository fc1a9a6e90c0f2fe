package repository

import (
	"encoding/json"
	"fmt"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// encodeSession serializes a session record. encoding/json writes struct
// fields in declaration order, so an unchanged session always encodes to
// the same bytes.
func encodeSession(session *models.TrackingSession) ([]byte, error) {
	record := *session
	if record.Version == "" {
		record.Version = models.SessionSchemaVersion
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}
	return data, nil
}

// decodeSession tolerates missing optional fields and ignores unknown ones
func decodeSession(data []byte) (*models.TrackingSession, error) {
	var session models.TrackingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	session.Migrate()
	return &session, nil
}

func nonNilPlaces(places []models.Place) []models.Place {
	if places == nil {
		return []models.Place{}
	}
	return places
}
