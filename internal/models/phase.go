package models

// Phase is a cell-cycle phase. Dead is terminal.
type Phase uint8

const (
	PhaseG1 Phase = iota
	PhaseS
	PhaseG2
	PhaseM
	PhaseDead
)

// CyclePhases lists the live phases in cyclic order.
var CyclePhases = [...]Phase{PhaseG1, PhaseS, PhaseG2, PhaseM}

// String returns the conventional phase name.
func (p Phase) String() string {
	switch p {
	case PhaseG1:
		return "G1"
	case PhaseS:
		return "S"
	case PhaseG2:
		return "G2"
	case PhaseM:
		return "M"
	case PhaseDead:
		return "Dead"
	}
	return "unknown"
}

// Next returns the following phase in G1→S→G2→M→G1 order.
// Dead stays Dead.
func (p Phase) Next() Phase {
	switch p {
	case PhaseG1:
		return PhaseS
	case PhaseS:
		return PhaseG2
	case PhaseG2:
		return PhaseM
	case PhaseM:
		return PhaseG1
	}
	return PhaseDead
}
