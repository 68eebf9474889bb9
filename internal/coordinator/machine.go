package coordinator

import "github.com/looplab/fsm"

// Cycle phases, observable through Phase() and the health endpoint.
const (
	PhaseIdle        = "idle"
	PhaseDiscovering = "discovering"
	PhaseFetching    = "fetching_readings"
	PhaseSuccess     = "success"
	PhaseFailed      = "failed"
)

// Cycle events.
const (
	eventDiscover = "discover"
	eventFetch    = "fetch"
	eventSucceed  = "succeed"
	eventFail     = "fail"
	eventSleep    = "sleep"
)

// newCycleMachine tracks one refresh cycle: idle → discovering →
// fetching_readings → success|failed → idle. Discovery is skipped when a
// snapshot already exists and no forced refresh is pending, so fetch is
// reachable from idle directly.
func newCycleMachine() *fsm.FSM {
	return fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventDiscover, Src: []string{PhaseIdle}, Dst: PhaseDiscovering},
			{Name: eventFetch, Src: []string{PhaseIdle, PhaseDiscovering}, Dst: PhaseFetching},
			{Name: eventSucceed, Src: []string{PhaseFetching}, Dst: PhaseSuccess},
			{Name: eventFail, Src: []string{PhaseDiscovering, PhaseFetching}, Dst: PhaseFailed},
			{Name: eventSleep, Src: []string{PhaseSuccess, PhaseFailed}, Dst: PhaseIdle},
		},
		fsm.Callbacks{},
	)
}
