package modelbundle

import (
	"fmt"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// InferenceEngine is the opaque trained-model interface the bundle delegates
// to. The core never re-implements HMM or policy-network math (§9 design
// note: "HMM/RL weights are opaque, loaded via a small inference runtime
// already present in the archive — not retrained, not reimplemented in Go").
// Production builds wire a concrete engine embedded from the archive's two
// blobs at process start; tests wire a deterministic stub.
type InferenceEngine interface {
	// HMMPredict maps the 3-scalar HMM feature vector to a state index in
	// [0, numStates).
	HMMPredict(features [3]float64) (stateIndex int, err error)
	// PolicyPredict maps the policy feature vector to an action index in
	// [0, len(actionTable)). deterministic selects argmax over the policy's
	// action distribution rather than sampling it.
	PolicyPredict(features []float64, deterministic bool) (actionIndex int, err error)
}

// Bundle is one loaded (symbol, timeframe) model archive: its metadata plus
// a bound inference engine (§4.5).
type Bundle struct {
	Symbol   string
	Metadata Metadata
	Costs    types.CostParams
	Engine   InferenceEngine
}

// HMMPredict delegates to the bound engine, validating the returned state
// index falls within the metadata's declared state count.
func (b *Bundle) HMMPredict(features [3]float64) (int, error) {
	state, err := b.Engine.HMMPredict(features)
	if err != nil {
		return 0, fmt.Errorf("bundle %s: hmm_predict: %w", b.Symbol, err)
	}
	if state < 0 || state >= b.Metadata.HMM.NumStates {
		return 0, fmt.Errorf("bundle %s: hmm_predict returned out-of-range state %d: %w", b.Symbol, state, types.ErrModelLoadFailed)
	}
	return state, nil
}

// PolicyPredict delegates to the bound engine, validating the returned
// action index falls within the archive's action table.
func (b *Bundle) PolicyPredict(features []float64, deterministic bool) (int, error) {
	action, err := b.Engine.PolicyPredict(features, deterministic)
	if err != nil {
		return 0, fmt.Errorf("bundle %s: policy_predict: %w", b.Symbol, err)
	}
	if action < 0 || action >= len(b.Metadata.ActionTable) {
		return 0, fmt.Errorf("bundle %s: policy_predict returned out-of-range action %d: %w", b.Symbol, action, types.ErrModelLoadFailed)
	}
	return action, nil
}

// ActionTableEntry converts one archive action-table row into the runtime
// types.ActionTableEntry the predictor resolves actions from.
func (b *Bundle) ActionTableEntry(index int) types.ActionTableEntry {
	row := b.Metadata.ActionTable[index]
	return types.ActionTableEntry{
		Name:      row.Name,
		Direction: types.Direction(row.Direction),
		Intensity: types.Intensity(row.Intensity),
	}
}
