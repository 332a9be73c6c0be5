package entity

// RoundPhase is the position of the scheduler inside a round. Phases always
// execute in PhaseOrder and reset at the round boundary.
type RoundPhase string

const (
	PhaseFunding      RoundPhase = "funding"
	PhaseDecisions    RoundPhase = "decisions"
	PhaseResolution   RoundPhase = "resolution"
	PhaseMarketEvents RoundPhase = "market_events"
	PhaseBookkeeping  RoundPhase = "bookkeeping"
)

// PhaseOrder is the fixed execution order of phases within a round.
var PhaseOrder = []RoundPhase{
	PhaseFunding,
	PhaseDecisions,
	PhaseResolution,
	PhaseMarketEvents,
	PhaseBookkeeping,
}

// SimState is the scheduler's lifecycle state.
type SimState string

const (
	SimInitializing SimState = "initializing"
	SimRunning      SimState = "running"
	SimPaused       SimState = "paused"
	SimStopped      SimState = "stopped"
)

// SimMode selects between timer-driven rounds and manual single-round
// execution.
type SimMode string

const (
	ModeAuto   SimMode = "auto"
	ModeManual SimMode = "manual"
)

// ValidMode reports whether s names a known mode.
func ValidMode(s string) bool {
	switch SimMode(s) {
	case ModeAuto, ModeManual:
		return true
	}
	return false
}
