package predictor

import (
	"time"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/feature"
	"github.com/riverline-quant/predictor-core/internal/modelbundle"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Predictor runs the per-symbol pipeline of §4.6 on each closed bar: buffer
// the bar, compute HMM state, compute the policy action, update the virtual
// position, and emit a Signal. All state here is single-writer — the
// caller must serialize bar delivery for one symbol (§4.6 concurrency
// note); different symbols may run on different goroutines.
type Predictor struct {
	symbol    string
	buffer    *BarBuffer
	bundle    *modelbundle.Bundle
	position  types.VirtualPosition
	hmmParams    feature.HMMParams
	policyParams feature.PolicyParams
	log       *zap.Logger
}

// NewPredictor builds a Predictor for symbol bound to a loaded model
// bundle. The virtual position's cost parameters are taken from the
// bundle's frozen training-time costs (§4.5 design note).
func NewPredictor(symbol string, bufferCapacity int, bundle *modelbundle.Bundle, log *zap.Logger) *Predictor {
	meta := bundle.Metadata
	return &Predictor{
		symbol: symbol,
		buffer: NewBarBuffer(bufferCapacity),
		bundle: bundle,
		position: types.VirtualPosition{
			Symbol: symbol,
			Costs:  bundle.Costs,
		},
		hmmParams: feature.HMMParams{
			MomentumPeriod:    meta.HMM.MomentumPeriod,
			ConsistencyPeriod: meta.HMM.ConsistencyPeriod,
			RangePeriod:       meta.HMM.RangePeriod,
		},
		policyParams: feature.PolicyParams{
			ROCPeriod:      meta.RL.ROCPeriod,
			ATRPeriod:      meta.RL.ATRPeriod,
			EMAPeriod:      meta.RL.EMAPeriod,
			RangePeriod:    meta.RL.RangePeriod,
			VolumeMAPeriod: meta.RL.VolumeMAPeriod,
			NumHMMStates:   meta.HMM.NumStates,
		},
		log: log,
	}
}

// Position returns a snapshot of the current virtual position.
func (p *Predictor) Position() types.VirtualPosition { return p.position }

// Warmup fast-forwards the pipeline over historical bars without emitting
// Signals, so the virtual position ends in the state the training
// environment would have reached after the same history (§4.6). Bars must
// already be in ascending time order; out-of-order bars are skipped with a
// logged warning rather than aborting the whole warmup.
func (p *Predictor) Warmup(bars []types.Bar) error {
	for _, bar := range bars {
		if err := p.buffer.Push(bar); err != nil {
			p.log.Warn("warmup: skipping out-of-order bar", zap.String("symbol", p.symbol), zap.Error(err))
			continue
		}
		if !p.buffer.Ready() {
			continue
		}
		if _, err := p.step(bar, false); err != nil {
			return err
		}
	}
	return nil
}

// OnBar processes one newly closed bar and returns the emitted Signal.
// Returns (zero Signal, false) while the buffer is still warming up
// (§4.6 step 1).
func (p *Predictor) OnBar(bar types.Bar) (types.Signal, bool, error) {
	if err := p.buffer.Push(bar); err != nil {
		return types.Signal{}, false, err
	}
	if !p.buffer.Ready() {
		return types.Signal{}, false, nil
	}
	return p.step(bar, true)
}

// step runs HMM inference, policy inference, and position update for the
// current buffer snapshot, optionally emitting a Signal.
func (p *Predictor) step(bar types.Bar, emit bool) (types.Signal, bool, error) {
	snapshot := p.buffer.Snapshot()

	hmmFeatures := feature.HMMFeatures(snapshot, p.hmmParams)
	hmmState, err := p.bundle.HMMPredict(hmmFeatures)
	if err != nil {
		return types.Signal{}, false, err
	}

	policyFeatures := feature.PolicyFeatures(snapshot, hmmState, feature.PositionInput{
		Direction:   p.position.Direction,
		Intensity:   p.position.Intensity,
		FloatingPnL: p.position.FloatingPnL,
	}, p.policyParams)

	actionIndex, err := p.bundle.PolicyPredict(policyFeatures, true)
	if err != nil {
		return types.Signal{}, false, err
	}
	action := types.ActionFromTableEntry(p.bundle.ActionTableEntry(actionIndex))

	realizedPnL := UpdatePosition(&p.position, action, bar.Close)

	if !emit {
		return types.Signal{}, false, nil
	}

	signal := types.NewSignal(p.symbol, action, hmmState, realizedPnL, bar.Close, time.Now())
	return signal, true, nil
}
