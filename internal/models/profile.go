package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Waypoint is one (time, temperature, power) anchor of a profile.
// It is encoded as a 3-element JSON array: [time_s, temp_c, power_pct].
type Waypoint struct {
	TimeS    float64 // seconds since run start
	TempC    float64 // °C
	PowerPct float64 // 0..100
}

func (w Waypoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{w.TimeS, w.TempC, w.PowerPct})
}

func (w *Waypoint) UnmarshalJSON(b []byte) error {
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("waypoint must be [time, temp, power]: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("waypoint must have 3 values, got %d", len(raw))
	}
	w.TimeS, w.TempC, w.PowerPct = raw[0], raw[1], raw[2]
	return nil
}

// Profile is a named temperature/power curve.
type Profile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Waypoints []Waypoint `json:"waypoints"`
	Selected  bool       `json:"selected"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Duration is the time of the last waypoint.
func (p Profile) Duration() float64 {
	if len(p.Waypoints) == 0 {
		return 0
	}
	return p.Waypoints[len(p.Waypoints)-1].TimeS
}

// Clone returns a deep copy so a run can keep its own snapshot.
func (p Profile) Clone() Profile {
	cp := p
	cp.Waypoints = append([]Waypoint(nil), p.Waypoints...)
	return cp
}
