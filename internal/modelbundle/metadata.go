// Package modelbundle loads the per-(symbol,timeframe) model archive: two
// opaque inference blobs (HMM weights, policy weights) plus a metadata
// record carried in the archive's comment field (spec §4.5). The archive
// container is a plain zip file — its comment field is a natural, already
// structured home for the metadata record the spec calls for, grounded on
// the teacher/pack's convention of keeping data and its description
// together (NimbleMarkets-dbn-go's Metadata, carried inside the DBN
// stream's own header rather than a side-channel file).
package modelbundle

import (
	"fmt"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

var errModelLoadFailed = types.ErrModelLoadFailed

// SupportedFormatVersions is the small allow-list the loader validates
// against; unknown versions fail loudly rather than silently (§4.5).
var SupportedFormatVersions = map[string]bool{
	"2.0": true,
}

// HMMConfig carries the regime model's windowing parameters (§4.5).
type HMMConfig struct {
	NumStates         int `json:"n_states"`
	MomentumPeriod    int `json:"momentum_period"`
	ConsistencyPeriod int `json:"consistency_period"`
	RangePeriod       int `json:"range_period"`
}

// RLConfig carries the policy model's windowing parameters (§4.5).
type RLConfig struct {
	ROCPeriod      int `json:"roc_period"`
	ATRPeriod      int `json:"atr_period"`
	EMAPeriod      int `json:"ema_period"`
	RangePeriod    int `json:"range_period"`
	VolumeMAPeriod int `json:"volume_ma_period"`
}

// ActionTableRow is one row of the 0..6 action index table (§4.5).
type ActionTableRow struct {
	Name      string `json:"name"`
	Direction int    `json:"direction"`
	Intensity int    `json:"intensity"`
}

// StateAnalysis records which HMM state indices were classified bull/bear/
// range during training (§4.5), used for diagnostics and dashboards — the
// core itself treats HMM state purely as an opaque integer.
type StateAnalysis struct {
	BullStates  []int `json:"bull_states"`
	BearStates  []int `json:"bear_states"`
	RangeStates []int `json:"range_states"`
}

// DataProvenance records the training data's date range and split sizes
// (§4.5), carried for audit purposes only.
type DataProvenance struct {
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	TrainBars     int    `json:"train_bars"`
	ValidateBars  int    `json:"validate_bars"`
	TestBars      int    `json:"test_bars"`
}

// CostParams mirrors pkg/types.CostParams in the archive's JSON shape; the
// loader converts it to pkg/types.CostParams on load.
type CostParams struct {
	Point            float64            `json:"point"`
	PipValue         float64            `json:"pip_value"`
	SpreadPoints     float64            `json:"spread_points"`
	SlippagePoints   float64            `json:"slippage_points"`
	CommissionPerLot float64            `json:"commission_per_lot"`
	Digits           int                `json:"digits"`
	InitialBalance   float64            `json:"initial_balance"`
	LotSizes         map[string]float64 `json:"lot_sizes"` // keys "1","2","3"
	TotalTimesteps   int64              `json:"total_timesteps"`
}

// Metadata is the full required field list of §4.5, serialized as JSON into
// the archive's zip comment.
type Metadata struct {
	FormatVersion  string          `json:"format_version"`
	SymbolDescriptor string        `json:"symbol"`
	Costs          CostParams      `json:"costs"`
	HMM            HMMConfig       `json:"hmm"`
	RL             RLConfig        `json:"rl"`
	ActionTable    [7]ActionTableRow `json:"action_table"`
	States         StateAnalysis   `json:"state_analysis"`
	Provenance     DataProvenance  `json:"provenance"`
}

// Validate enforces the loud-failure contract of §4.5: unknown format
// version or missing required fields fail the load instead of limping on
// with zero values.
func (m Metadata) Validate() error {
	if !SupportedFormatVersions[m.FormatVersion] {
		return fmt.Errorf("%w: unsupported format_version %q", errModelLoadFailed, m.FormatVersion)
	}
	if m.SymbolDescriptor == "" {
		return fmt.Errorf("%w: missing symbol descriptor", errModelLoadFailed)
	}
	if m.Costs.Point <= 0 || m.Costs.PipValue <= 0 {
		return fmt.Errorf("%w: missing or invalid cost parameters", errModelLoadFailed)
	}
	if m.HMM.NumStates <= 0 {
		return fmt.Errorf("%w: missing hmm.n_states", errModelLoadFailed)
	}
	if m.RL.ROCPeriod <= 0 || m.RL.ATRPeriod <= 0 || m.RL.EMAPeriod <= 0 || m.RL.RangePeriod <= 0 || m.RL.VolumeMAPeriod <= 0 {
		return fmt.Errorf("%w: missing rl periods", errModelLoadFailed)
	}
	for i, row := range m.ActionTable {
		if row.Name == "" {
			return fmt.Errorf("%w: missing action_table entry %d", errModelLoadFailed, i)
		}
	}
	return nil
}
