package worker

import "fmt"

// Phase is a step of the per-slot state machine. Every slot walks the phases
// in order; each phase decides on its own whether it has anything to do.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAnnouncing
	PhaseCommitting
	PhaseOpening
	PhaseSharing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseCommitting:
		return "committing"
	case PhaseOpening:
		return "opening"
	case PhaseSharing:
		return "sharing"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("[invalid phase: %d]", uint8(p))
	}
}

// Next returns the phase that follows p. Done is terminal.
func (p Phase) Next() Phase {
	if p >= PhaseDone {
		return PhaseDone
	}
	return p + 1
}
