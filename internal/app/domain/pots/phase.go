package pots

import (
	"encoding/json"
	"fmt"
)

// Phase is the lifecycle position of the current round relative to a timestamp.
type Phase int32

const (
	// PhaseNotStarted means the next round's start time is still ahead.
	PhaseNotStarted Phase = iota

	// PhaseActive accepts deposits and reallocations.
	PhaseActive

	// PhaseEnded means the end time has passed and settlement may run.
	PhaseEnded
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// RequireActive maps a phase to the error an action sees outside the active window.
func (p Phase) RequireActive() error {
	switch p {
	case PhaseActive:
		return nil
	case PhaseNotStarted:
		return ErrGameNotStarted
	default:
		return ErrGameAlreadyEnded
	}
}
