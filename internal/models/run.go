package models

import "time"

// RunState is the controller state.
type RunState string

const (
	StateIdle     RunState = "IDLE"
	StateRunning  RunState = "RUNNING"
	StateStopping RunState = "STOPPING"
	StateRunOut   RunState = "RUN_OUT"
	StateFaulted  RunState = "FAULTED"
)

// Sample is one measured point of the active run.
type Sample struct {
	TimeS float64 `json:"time"`   // seconds since run start
	TempC float64 `json:"temp_c"` // °C
}

// Targets are the profile values the controller is tracking.
type Targets struct {
	TempC    float64 `json:"target_temp_c"`
	PowerPct float64 `json:"target_power"`
}

// RunStatus is the snapshot returned to observers.
type RunStatus struct {
	RunID     string    `json:"run_id,omitempty"`
	State     RunState  `json:"state"`
	ElapsedS  float64   `json:"elapsed"`
	Running   bool      `json:"running"`
	RunOut    bool      `json:"run_out"`
	ProfileID string    `json:"profile_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastPower float64   `json:"last_power"`
	Fault     string    `json:"fault,omitempty"` // e.g. "device timeout", "OVERHEAT"
}

// RunSnapshot is what the live stream pushes on every tick.
type RunSnapshot struct {
	Status     RunStatus `json:"status"`
	Targets    Targets   `json:"targets"`
	LastSample *Sample   `json:"last_sample,omitempty"`
}
