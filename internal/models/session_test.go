package models

import "testing"

func TestCloneSharesNothing(t *testing.T) {
	end := int64(2_000)
	s := &TrackingSession{
		ID:      "s1",
		EndTime: &end,
		Fixes: []GPSFix{{
			Latitude:  46,
			Longitude: 7,
			Altitude:  Float64(1000),
			Speed:     Float64(1.5),
			Heading:   Float64(90),
			Battery:   &BatteryInfo{Level: 0.8},
		}},
		Places: []Place{{Name: "Summit", Photos: []string{"a.jpg"}, Latitude: Float64(46)}},
	}

	c := s.Clone()
	*c.EndTime = 0
	*c.Fixes[0].Altitude = 0
	*c.Fixes[0].Speed = 0
	*c.Fixes[0].Heading = 0
	c.Fixes[0].Battery.Level = 0
	c.Places[0].Photos[0] = "b.jpg"
	*c.Places[0].Latitude = 0

	f := s.Fixes[0]
	if *s.EndTime != 2_000 || *f.Altitude != 1000 || *f.Speed != 1.5 || *f.Heading != 90 || f.Battery.Level != 0.8 {
		t.Errorf("fix mutated through clone: %+v", f)
	}
	if s.Places[0].Photos[0] != "a.jpg" || *s.Places[0].Latitude != 46 {
		t.Errorf("place mutated through clone: %+v", s.Places[0])
	}
	if (*TrackingSession)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}
