package types

import "time"

// Signal is the Predictor's per-bar, per-symbol emission (§3 Data Model,
// glossary: Signal).
type Signal struct {
	Symbol      string
	Action      Action
	Direction   Direction
	Intensity   Intensity
	HMMState    int
	VirtualPnL  float64
	EmittedAt   time.Time
	ClosePrice  float64 // close of the bar this signal was derived from
}

// NewSignal builds a Signal, deriving Direction/Intensity from Action so
// callers never need to keep the two in sync by hand.
func NewSignal(symbol string, action Action, hmmState int, virtualPnL, closePrice float64, emittedAt time.Time) Signal {
	return Signal{
		Symbol:     symbol,
		Action:     action,
		Direction:  action.Direction(),
		Intensity:  action.Intensity(),
		HMMState:   hmmState,
		VirtualPnL: virtualPnL,
		EmittedAt:  emittedAt,
		ClosePrice: closePrice,
	}
}
