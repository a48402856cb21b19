package app

import (
	"time"

	"github.com/relabs-tech/reach_rig/internal/recorder"
)

// OutcomeEvent is the compact per-round summary published on the outcome
// topic for the monitor, observer web, and status display. Traces stay in
// the dataset only.
type OutcomeEvent struct {
	Trial    int       `json:"trial"`
	Round    int       `json:"round"`
	Kind     string    `json:"kind"`
	Practice bool      `json:"practice,omitempty"`
	Retry    bool      `json:"retry,omitempty"`
	Outcome  int       `json:"outcome"`
	Duration float64   `json:"duration_s"`
	At       time.Time `json:"at"`
}

func outcomeEvent(rec recorder.RoundRecord) OutcomeEvent {
	return OutcomeEvent{
		Trial:    rec.Trial,
		Round:    rec.Round,
		Kind:     rec.Kind,
		Practice: rec.Practice,
		Retry:    rec.Retry,
		Outcome:  rec.Outcome,
		Duration: rec.Duration,
		At:       rec.StartedAt,
	}
}
