package types

import "time"

// CostParams are the training-time cost parameters frozen into a model
// bundle's metadata (§4.5, §9 design note: "frozen-valued feature constants
// tied to training" travel with the archive, never in process config, to
// eliminate drift between training and the virtual position's accounting).
type CostParams struct {
	Point            float64
	PipValue         float64 // monetary value of one pip for one lot
	SpreadPoints      float64
	SlippagePoints    float64
	CommissionPerLot float64
	Digits           int
	InitialBalance   float64
	// LotSizes maps intensity (1,2,3) to the lot size the training
	// environment used for that tier. Index 0 is unused (flat).
	LotSizes [4]float64
}

// PipSize returns the price distance of one pip for this instrument: 10*point for
// 5-digit and 3-digit (JPY) symbols, 1*point otherwise (glossary: Pip/point).
func (c CostParams) PipSize() float64 {
	if c.Digits == 3 || c.Digits == 5 {
		return 10 * c.Point
	}
	return c.Point
}

// VirtualPosition is the Predictor's in-memory position mirroring what the
// training environment would hold (§3, §4.2). Owned exclusively by the
// Predictor for one symbol; never shared.
type VirtualPosition struct {
	Symbol        string
	Direction     Direction
	Intensity     Intensity
	EntryPrice    float64
	FloatingPnL   float64
	RealizedTotal float64
	Costs         CostParams
}

// IsFlat reports whether the position currently holds no exposure.
func (v VirtualPosition) IsFlat() bool { return v.Direction == DirectionFlat }

// invariant (checked by tests, §8 property 2): Direction==0 <=> Intensity==0,
// and EntryPrice>0 <=> Direction!=0.
func (v VirtualPosition) checkInvariant() bool {
	if (v.Direction == DirectionFlat) != (v.Intensity == 0) {
		return false
	}
	if (v.EntryPrice > 0) != (v.Direction != DirectionFlat) {
		return false
	}
	return true
}

// SymbolConfig is the Executor's per-symbol configuration (§3, §6 symbol
// configuration file): lot mapping, USD-denominated stop/target, spread gate.
type SymbolConfig struct {
	Symbol       string
	Enabled      bool
	LotMap       [4]float64 // index 1,2,3 by intensity; 0 unused
	SLUSD        float64    // 0 = disabled
	TPUSD        float64    // 0 = disabled
	MaxSpreadPips float64
}

// RiskParams is the reserved "_risk" entry of the symbol configuration file.
type RiskParams struct {
	DrawdownLimitPct     float64 `json:"drawdown_limit_pct" mapstructure:"drawdown_limit_pct"`
	DrawdownEmergencyPct float64 `json:"drawdown_emergency_pct" mapstructure:"drawdown_emergency_pct"`
	InitialBalance       float64 `json:"initial_balance" mapstructure:"initial_balance"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" mapstructure:"max_consecutive_losses"`
}

// SymbolMetadata is the broker-supplied, TTL-cached instrument description
// (§3, §4.7 symbol metadata cache).
type SymbolMetadata struct {
	Symbol        string
	Point         float64
	Digits        int
	PipValuePerLot float64
	SpreadPoints   float64
	VolumeMin      float64
	VolumeStep     float64
	VolumeMax      float64
	FetchedAt      time.Time
}

// Stale reports whether the cached metadata has exceeded ttl.
func (m SymbolMetadata) Stale(ttl time.Duration, now time.Time) bool {
	return now.Sub(m.FetchedAt) >= ttl
}

// RealPosition is the broker-authoritative open position (§3).
type RealPosition struct {
	Ticket      uint64
	Symbol      string
	Direction   Direction
	Volume      float64
	OpenPrice   float64
	CurrentPrice float64
	RealizedPnL float64
	FloatingPnL float64
	SL          float64
	TP          float64
	OpenTime    time.Time
	Comment     string
}

// Account is the broker-authoritative account snapshot (§3). Invariants:
// Equity == Balance + sum(floating PnL); FreeMargin == Equity - UsedMargin.
type Account struct {
	Balance      float64
	Equity       float64
	UsedMargin   float64
	FreeMargin   float64
	MarginLevel  float64
	Currency     string
}

// OrderResult is the immutable outcome of a single broker order request (§3).
type OrderResult struct {
	Success       bool
	Ticket        uint64
	ExecutedPrice float64
	ErrorCategory string
}
