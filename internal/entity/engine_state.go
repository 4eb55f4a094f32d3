package entity

import "time"

// Phase is the engine lifecycle position.
//
// Idle -> Running -> {Paused <-> Running} -> Stopping -> Idle
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseStopping Phase = "stopping"
)

// Ordinal is used for the phase gauge.
func (p Phase) Ordinal() float64 {
	switch p {
	case PhaseRunning:
		return 1
	case PhasePaused:
		return 2
	case PhaseStopping:
		return 3
	default:
		return 0
	}
}

// EngineState is a point-in-time copy handed to the control surface.
type EngineState struct {
	RunID            string    `json:"run_id,omitempty"`
	Phase            Phase     `json:"phase"`
	TotalCandidates  int       `json:"total_candidates"`
	TotalChecked     int64     `json:"total_checked"`
	TotalFound       int64     `json:"total_found"`
	ErrorCount       int64     `json:"error_count"`
	Rate             float64   `json:"rate"`
	Progress         float64   `json:"progress"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	CurrentCandidate string    `json:"current_candidate,omitempty"`
}
