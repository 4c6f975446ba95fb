package models

import "time"

// TimerSnapshot is the derived view of a session's countdown at a given
// server instant. It is computed on demand, never persisted tick-by-tick.
type TimerSnapshot struct {
	RemainingSeconds  int       `json:"remaining_seconds"`
	ElapsedSeconds    int       `json:"elapsed_seconds"`
	TargetDurationMin int       `json:"target_duration_min"`
	ServerTimestamp   time.Time `json:"server_timestamp"`
}

// Clamp forces RemainingSeconds into [0, TargetDurationMin*60] and keeps
// ElapsedSeconds non-negative.
func (t *TimerSnapshot) Clamp() {
	max := t.TargetDurationMin * 60
	if t.RemainingSeconds < 0 {
		t.RemainingSeconds = 0
	}
	if t.RemainingSeconds > max {
		t.RemainingSeconds = max
	}
	if t.ElapsedSeconds < 0 {
		t.ElapsedSeconds = 0
	}
}
