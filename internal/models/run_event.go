package models

import "time"

// Run event types.
const (
	EventStart  = "START"
	EventStop   = "STOP"
	EventRunOut = "RUN_OUT"
	EventFault  = "FAULT"
	EventReset  = "RESET"
)

// RunEvent is a single log entry.
type RunEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // START | STOP | RUN_OUT | FAULT | RESET
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
