package service

import "time"

// LogFilter selects run events by time range, type and run.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "START", "STOP", "RUN_OUT", "FAULT", "RESET"
	RunID string
	Limit int
}
