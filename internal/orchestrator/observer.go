package orchestrator

import "rlm-translate/internal/state"

// Phase names reported through Observer.Step, in loop order.
const (
	PhasePlan      = "PLAN"
	PhaseRetrieve  = "RETRIEVE"
	PhaseTranslate = "TRANSLATE"
	PhaseVerify    = "VERIFY"
	PhaseRepair    = "REPAIR"
	PhaseCommit    = "COMMIT"
)

// Observer receives engine events as the loop advances. The loop calls the
// methods inline from its own goroutine, so implementations must return
// quickly and must not block.
type Observer interface {
	// Progress reports a user-facing label and a completion fraction
	// in [0, 1].
	Progress(message string, fraction float64)

	// Step announces the phase about to run in the current round.
	Step(name string)

	// QualityFlags reports the status assigned to the chunk that was
	// just committed.
	QualityFlags(flags []state.ChunkStatus)

	// CostStats reports running provider spend after each commit.
	CostStats(cost float64, calls int, chunks int)

	// Repair announces a repair action before it runs.
	Repair(repairType state.RepairType, message string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Progress(string, float64) {}
func (NopObserver) Step(string) {}
func (NopObserver) QualityFlags([]state.ChunkStatus) {}
func (NopObserver) CostStats(float64, int, int) {}
func (NopObserver) Repair(state.RepairType, string) {}
