// Package predictor implements the per-symbol prediction pipeline: the bar
// buffer, bar detector, virtual position accounting, and the predictor loop
// that ties a model bundle's inference to a Signal (spec §4.2-§4.4, §4.6).
package predictor

import "github.com/riverline-quant/predictor-core/pkg/types"

// UpdatePosition replicates the training environment's execute_action
// exactly (§4.2): no partial fills, no partial closes — any change in
// direction or intensity is a close-then-reopen. Returns the PnL realized
// by this single call (0 if the position was merely marked to market).
func UpdatePosition(pos *types.VirtualPosition, action types.Action, price float64) float64 {
	targetDir := action.Direction()
	targetIntensity := action.Intensity()

	if targetDir == pos.Direction && targetIntensity == pos.Intensity {
		pos.FloatingPnL = floatingPnL(*pos, price)
		return 0
	}

	var realized float64

	if !pos.IsFlat() {
		exitPrice := exitFillPrice(pos.Direction, price, pos.Costs)
		pnl := priceDeltaPnL(pos.EntryPrice, exitPrice, pos.Direction, pos.Intensity, pos.Costs)
		commissionHalf := pos.Costs.CommissionPerLot * pos.Costs.LotSizes[pos.Intensity] / 2
		realized += pnl - commissionHalf
		pos.Direction = types.DirectionFlat
		pos.Intensity = 0
		pos.EntryPrice = 0
	}

	if targetDir != types.DirectionFlat {
		entryPrice := entryFillPrice(targetDir, price, pos.Costs)
		commissionHalf := pos.Costs.CommissionPerLot * pos.Costs.LotSizes[targetIntensity] / 2
		realized -= commissionHalf
		pos.Direction = targetDir
		pos.Intensity = targetIntensity
		pos.EntryPrice = entryPrice
	}

	pos.RealizedTotal += realized
	pos.FloatingPnL = floatingPnL(*pos, price)
	return realized
}

// entryFillPrice applies spread and slippage against the opening side: a
// long entry pays spread+slippage above the quoted price; a short entry
// receives spread+slippage below it (§4.2).
func entryFillPrice(dir types.Direction, price float64, c types.CostParams) float64 {
	cost := (c.SpreadPoints + c.SlippagePoints) * c.Point
	if dir == types.DirectionLong {
		return price + cost
	}
	return price - cost
}

// exitFillPrice applies only slippage against the closing side, in the
// direction that always works against the position (§4.2: "LONG exit =
// price - slippage", symmetric for short).
func exitFillPrice(dir types.Direction, price float64, c types.CostParams) float64 {
	cost := c.SlippagePoints * c.Point
	if dir == types.DirectionLong {
		return price - cost
	}
	return price + cost
}

// priceDeltaPnL is the PnL formula of §4.2:
// ((exit-entry) * direction / point / 10) * pip_value * lot_size[intensity].
func priceDeltaPnL(entry, exit float64, dir types.Direction, intensity types.Intensity, c types.CostParams) float64 {
	if c.Point == 0 {
		return 0
	}
	pips := (exit - entry) * float64(dir) / c.Point / 10
	return pips * c.PipValue * c.LotSizes[intensity]
}

// floatingPnL marks an open position to the current market price with the
// same PnL formula, using the raw quote (no spread/slippage) as both the
// unrealized entry and exit reference point.
func floatingPnL(pos types.VirtualPosition, price float64) float64 {
	if pos.IsFlat() {
		return 0
	}
	return priceDeltaPnL(pos.EntryPrice, price, pos.Direction, pos.Intensity, pos.Costs)
}
