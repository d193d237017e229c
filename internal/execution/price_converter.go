package execution

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// fallbackPipValues is the static table of well-known majors consulted when
// a symbol's pip_value_per_lot is unavailable from broker-supplied symbol
// info (§4.9 step 1). Production never guesses beyond this list.
var fallbackPipValues = map[string]float64{
	"EURUSD": 10.0,
	"GBPUSD": 10.0,
	"AUDUSD": 10.0,
	"NZDUSD": 10.0,
	"USDCAD": 10.0,
	"USDCHF": 10.0,
	"USDJPY": 9.30,
	"EURJPY": 9.30,
	"GBPJPY": 9.30,
}

// PriceConverter converts USD-denominated stop/target distances to absolute
// price levels (§4.9).
type PriceConverter struct{}

// NewPriceConverter builds a stateless PriceConverter.
func NewPriceConverter() *PriceConverter { return &PriceConverter{} }

// pipSize returns 0.01 for 3-digit JPY-style quotes, 0.0001 otherwise,
// reading digits from symbol info when present (§4.9 step 3).
func pipSize(digits int) float64 {
	if digits == 3 {
		return 0.01
	}
	return 0.0001
}

func (c *PriceConverter) pipValuePerLot(symbol string, meta types.SymbolMetadata) (float64, error) {
	if meta.PipValuePerLot > 0 {
		return meta.PipValuePerLot, nil
	}
	if v, ok := fallbackPipValues[symbol]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("no pip value available for %s: %w", symbol, types.ErrUnknownPipValue)
}

// USDToDistance converts a USD stop/target distance to a price distance,
// returning 0 (meaning "not set") when usd is 0 (§4.9 step final note).
func (c *PriceConverter) USDToDistance(symbol string, usd, volume float64, meta types.SymbolMetadata) (float64, error) {
	if usd == 0 {
		return 0, nil
	}
	if volume <= 0 {
		return 0, fmt.Errorf("invalid volume %f for %s: %w", volume, symbol, types.ErrUnknownPipValue)
	}
	pipValuePerLot, err := c.pipValuePerLot(symbol, meta)
	if err != nil {
		return 0, err
	}
	// USD-stop math has no model-parity float contract (§9 design note), so
	// it is computed in decimal.Decimal rather than float64, same as the
	// rest of the account-money path.
	notionalPerPip := decimal.NewFromFloat(pipValuePerLot).Mul(decimal.NewFromFloat(volume))
	distancePips := decimal.NewFromFloat(usd).Div(notionalPerPip)
	digits := meta.Digits
	distance, _ := distancePips.Mul(decimal.NewFromFloat(pipSize(digits))).Float64()
	return distance, nil
}

// StopLevels computes absolute SL/TP prices for a LONG or SHORT entry at
// entryPrice, rounding to the symbol's price precision (§4.9 steps 4-5). A
// zero usd value for either leg yields 0 (no stop/target on that side).
func (c *PriceConverter) StopLevels(symbol string, dir types.Direction, entryPrice, slUSD, tpUSD, volume float64, meta types.SymbolMetadata) (slPrice, tpPrice float64, err error) {
	slDist, err := c.USDToDistance(symbol, slUSD, volume, meta)
	if err != nil {
		return 0, 0, err
	}
	tpDist, err := c.USDToDistance(symbol, tpUSD, volume, meta)
	if err != nil {
		return 0, 0, err
	}

	digits := meta.Digits
	if dir == types.DirectionLong {
		if slDist > 0 {
			slPrice = round(entryPrice-slDist, digits)
		}
		if tpDist > 0 {
			tpPrice = round(entryPrice+tpDist, digits)
		}
		return slPrice, tpPrice, nil
	}

	if slDist > 0 {
		slPrice = round(entryPrice+slDist, digits)
	}
	if tpDist > 0 {
		tpPrice = round(entryPrice-tpDist, digits)
	}
	return slPrice, tpPrice, nil
}

func round(price float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(price*scale) / scale
}
