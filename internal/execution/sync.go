package execution

import "github.com/riverline-quant/predictor-core/pkg/types"

// SyncMachine implements the decision table and missed-entry rule of §4.10.
// One instance per symbol; single-writer, owned by that symbol's executor
// task (§5 shared resource policy).
type SyncMachine struct {
	symbol string
	state  types.SyncState
}

// NewSyncMachine builds a machine starting flat and not waiting.
func NewSyncMachine(symbol string) *SyncMachine {
	return &SyncMachine{symbol: symbol, state: types.SyncState{Symbol: symbol}}
}

// State returns a snapshot of the current sync state, for diagnostics.
func (m *SyncMachine) State() types.SyncState { return m.state }

// Evaluate runs one step of the decision table against the broker's real
// position direction (DirectionFlat if no real position exists) and the
// signal's direction. It returns the Decision and whether a fresh open is
// authorized this step (the `should_open` edge flag of §4.10/§4.11).
func (m *SyncMachine) Evaluate(realDirection, signalDirection types.Direction) (types.Decision, bool) {
	if realDirection == types.DirectionFlat {
		return m.evaluateFlat(signalDirection)
	}
	return m.evaluateHeld(realDirection, signalDirection)
}

func (m *SyncMachine) evaluateFlat(signalDirection types.Direction) (types.Decision, bool) {
	if signalDirection == types.DirectionFlat {
		if m.state.WaitingSync {
			// The latched signal fell back to flat: the missed-entry edge is
			// satisfied. Clear the latch but remember sync was achieved, so
			// the next non-zero signal opens directly instead of re-latching.
			m.state.WaitingSync = false
			m.state.Synced = true
		}
		return types.DecisionNoop, false
	}

	if m.state.Synced {
		m.state.Synced = false
		m.state.LastSignalDirection = signalDirection
		return types.DecisionWaitSync, true
	}

	if !m.state.WaitingSync {
		// Broker flat, model wants a position: latch and wait for an edge
		// rather than entering mid-move (§4.10 "missed-entry rule").
		m.state.WaitingSync = true
		m.state.LastSignalDirection = signalDirection
		return types.DecisionWaitSync, false
	}

	if signalDirection != m.state.LastSignalDirection {
		// Direct reversal while still latched, no intervening flat bar: this
		// is itself an edge, open straight away.
		m.state.LastSignalDirection = signalDirection
		return types.DecisionWaitSync, true
	}

	// Same direction as latched, still no edge.
	return types.DecisionWaitSync, false
}

func (m *SyncMachine) evaluateHeld(realDirection, signalDirection types.Direction) (types.Decision, bool) {
	m.state.WaitingSync = false

	if signalDirection == realDirection {
		return types.DecisionNoop, false
	}
	// signalDirection == 0 (exit) or opposite (inversion): both close the
	// real position. A fresh open after an inversion is not issued in the
	// same step — the next bar observes the broker flat and falls into the
	// missed-entry rule (§8 S3).
	m.state.LastSignalDirection = signalDirection
	return types.DecisionClose, false
}
