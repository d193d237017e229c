package predictor

import (
	"math"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func testCosts() types.CostParams {
	return types.CostParams{
		Point:            0.0001,
		PipValue:         10,
		SpreadPoints:     2,
		SlippagePoints:   1,
		CommissionPerLot: 7,
		Digits:           5,
		InitialBalance:   10000,
		LotSizes:         [4]float64{0, 0.1, 0.2, 0.3},
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestUpdatePositionOpenLong(t *testing.T) {
	pos := types.VirtualPosition{Symbol: "EURUSD", Costs: testCosts()}
	realized := UpdatePosition(&pos, types.ActionLongWeak, 1.1000)

	wantEntry := 1.1000 + (2+1)*0.0001
	if !almostEqual(pos.EntryPrice, wantEntry) {
		t.Errorf("entry price = %f, want %f", pos.EntryPrice, wantEntry)
	}
	if pos.Direction != types.DirectionLong || pos.Intensity != 1 {
		t.Errorf("position = %v/%v, want Long/1", pos.Direction, pos.Intensity)
	}
	wantCommission := -testCosts().CommissionPerLot * testCosts().LotSizes[1] / 2
	if !almostEqual(realized, wantCommission) {
		t.Errorf("realized on open = %f, want %f", realized, wantCommission)
	}
}

func TestUpdatePositionSameActionMarksToMarketOnly(t *testing.T) {
	pos := types.VirtualPosition{Symbol: "EURUSD", Costs: testCosts()}
	UpdatePosition(&pos, types.ActionLongWeak, 1.1000)

	realized := UpdatePosition(&pos, types.ActionLongWeak, 1.1050)
	if realized != 0 {
		t.Errorf("expected 0 realized for unchanged action, got %f", realized)
	}
	if pos.FloatingPnL <= 0 {
		t.Errorf("expected positive floating PnL for a favorable long move, got %f", pos.FloatingPnL)
	}
}

func TestUpdatePositionCloseRealizesPnLAndCommission(t *testing.T) {
	costs := testCosts()
	pos := types.VirtualPosition{Symbol: "EURUSD", Costs: costs}
	UpdatePosition(&pos, types.ActionLongWeak, 1.1000) // entry = 1.1000 + 0.0003 = 1.1003

	realized := UpdatePosition(&pos, types.ActionWait, 1.2000) // close, no reopen

	exitPrice := 1.2000 - costs.SlippagePoints*costs.Point // = 1.1999
	entryPrice := 1.1000 + (costs.SpreadPoints+costs.SlippagePoints)*costs.Point
	wantPnL := (exitPrice-entryPrice)/costs.Point/10*costs.PipValue*costs.LotSizes[1]
	wantCommission := costs.CommissionPerLot * costs.LotSizes[1] / 2
	wantRealized := wantPnL - wantCommission

	if !almostEqual(realized, wantRealized) {
		t.Errorf("realized on close = %f, want %f", realized, wantRealized)
	}
	if !pos.IsFlat() {
		t.Error("position should be flat after closing with no reopen")
	}
}

func TestUpdatePositionIntensityChangeClosesAndReopens(t *testing.T) {
	costs := testCosts()
	pos := types.VirtualPosition{Symbol: "EURUSD", Costs: costs}
	UpdatePosition(&pos, types.ActionLongWeak, 1.1000)

	realized := UpdatePosition(&pos, types.ActionLongStrong, 1.1000)
	if pos.Direction != types.DirectionLong || pos.Intensity != 3 {
		t.Errorf("expected Long/3 after reopen, got %v/%v", pos.Direction, pos.Intensity)
	}

	closeCommission := costs.CommissionPerLot * costs.LotSizes[1] / 2
	openCommission := costs.CommissionPerLot * costs.LotSizes[3] / 2
	if realized >= 0 {
		t.Errorf("expected net negative realized from commission-only close+reopen at flat price, got %f", realized)
	}
	_ = closeCommission
	_ = openCommission
}

func TestUpdatePositionInvariantNeverViolated(t *testing.T) {
	pos := types.VirtualPosition{Symbol: "EURUSD", Costs: testCosts()}
	actions := []types.Action{
		types.ActionLongWeak, types.ActionLongStrong, types.ActionWait,
		types.ActionShortModerate, types.ActionWait, types.ActionShortWeak,
	}
	for _, a := range actions {
		UpdatePosition(&pos, a, 1.1000)
		if (pos.Direction == types.DirectionFlat) != (pos.Intensity == 0) {
			t.Fatalf("invariant violated: direction=%v intensity=%v", pos.Direction, pos.Intensity)
		}
		if (pos.EntryPrice > 0) != (pos.Direction != types.DirectionFlat) {
			t.Fatalf("invariant violated: entryPrice=%v direction=%v", pos.EntryPrice, pos.Direction)
		}
	}
}
