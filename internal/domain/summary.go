package domain

import "time"

// RunSummary is the append-only record of one orchestrator run. It is never
// mutated after the run finishes.
type RunSummary struct {
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Total     int       `json:"total"`
	Success   int       `json:"success"`
	Fail      int       `json:"fail"`
	Error     string    `json:"error,omitempty"`
}
