package models

import (
	"errors"
	"strings"
)

// ErrInvalidPlace is returned for places that cannot be attached to a session
var ErrInvalidPlace = errors.New("invalid place: name is required")

// PlaceType constants. The set is open; unknown types score 0.
const (
	PlaceTypePeak  = "PEAK"
	PlaceTypeTower = "TOWER"
	PlaceTypeTree  = "TREE"
	PlaceTypeOther = "OTHER"
)

// Place is a user-tagged point of interest
type Place struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	CreatedAt   int64    `json:"createdAt"` // Unix milliseconds
}

func (p Place) clone() Place {
	if p.Photos != nil {
		photos := make([]string, len(p.Photos))
		copy(photos, p.Photos)
		p.Photos = photos
	}
	p.Latitude = copyFloat(p.Latitude)
	p.Longitude = copyFloat(p.Longitude)
	return p
}

// Normalize trims the place fields and upper-cases its type. A place
// without a name is rejected.
func (p *Place) Normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrInvalidPlace
	}
	p.Type = strings.ToUpper(strings.TrimSpace(p.Type))
	if p.Type == "" {
		p.Type = PlaceTypeOther
	}
	return nil
}
