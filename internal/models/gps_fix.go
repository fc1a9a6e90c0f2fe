package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFix is returned when a position fix fails boundary validation
var ErrInvalidFix = errors.New("invalid gps fix")

// BatteryInfo is a battery snapshot taken when a fix was captured
type BatteryInfo struct {
	Level    float64 `json:"level"` // 0.0 - 1.0
	Charging bool    `json:"charging"`
}

// GPSFix represents one sensor reading delivered by the host location watch
type GPSFix struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Altitude  *float64     `json:"altitude,omitempty"` // meters
	Accuracy  float64      `json:"accuracy"`           // horizontal accuracy in meters
	Speed     *float64     `json:"speed,omitempty"`    // m/s
	Heading   *float64     `json:"heading,omitempty"`  // degrees
	Timestamp int64        `json:"timestamp"`          // Unix milliseconds
	Battery   *BatteryInfo `json:"battery,omitempty"`
}

func (f GPSFix) clone() GPSFix {
	f.Altitude = copyFloat(f.Altitude)
	f.Speed = copyFloat(f.Speed)
	f.Heading = copyFloat(f.Heading)
	if f.Battery != nil {
		b := *f.Battery
		f.Battery = &b
	}
	return f
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Validate checks that all numeric fields are finite and within range.
// It is applied once, when a fix enters the system.
func (f GPSFix) Validate() error {
	if !isFinite(f.Latitude) || f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidFix, f.Latitude)
	}
	if !isFinite(f.Longitude) || f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidFix, f.Longitude)
	}
	if !isFinite(f.Accuracy) || f.Accuracy < 0 {
		return fmt.Errorf("%w: accuracy %v", ErrInvalidFix, f.Accuracy)
	}
	if f.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidFix)
	}
	if f.Altitude != nil && !isFinite(*f.Altitude) {
		return fmt.Errorf("%w: altitude is not finite", ErrInvalidFix)
	}
	if f.Speed != nil && (!isFinite(*f.Speed) || *f.Speed < 0) {
		return fmt.Errorf("%w: speed %v", ErrInvalidFix, *f.Speed)
	}
	if f.Heading != nil && (!isFinite(*f.Heading) || *f.Heading < 0 || *f.Heading >= 360) {
		return fmt.Errorf("%w: heading %v", ErrInvalidFix, *f.Heading)
	}
	if f.Battery != nil && (!isFinite(f.Battery.Level) || f.Battery.Level < 0 || f.Battery.Level > 1) {
		return fmt.Errorf("%w: battery level %v", ErrInvalidFix, f.Battery.Level)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Float64 returns a pointer to v, for populating optional fix fields
func Float64(v float64) *float64 {
	return &v
}
