package predictor

import "github.com/riverline-quant/predictor-core/pkg/types"

// BarDetector aggregates a tick stream into closed bars aligned to a
// timeframe boundary (§4.4). One instance per symbol; not safe for
// concurrent use.
type BarDetector struct {
	symbol       string
	period       int64
	initialized  bool
	barStart     int64
	open, high, low, close float64
	volume       float64
}

// NewBarDetector builds a detector for symbol aggregating ticks into bars
// of the given timeframe.
func NewBarDetector(symbol string, tf types.Timeframe) *BarDetector {
	return &BarDetector{symbol: symbol, period: int64(tf)}
}

// OnTick feeds one tick (epoch seconds, price) into the detector. It
// returns the just-closed bar and true when this tick crosses into a new
// bar boundary; otherwise it returns the zero Bar and false — including on
// the very first tick, which only initializes state without emitting
// (§4.4).
func (d *BarDetector) OnTick(epochSeconds int64, price float64) (types.Bar, bool) {
	barStart := types.BarStart(epochSeconds, types.Timeframe(d.period))

	if !d.initialized {
		d.initialized = true
		d.resetTo(barStart, price)
		return types.Bar{}, false
	}

	if barStart > d.barStart {
		closed := d.buildBar()
		d.resetTo(barStart, price)
		return closed, true
	}

	if price > d.high {
		d.high = price
	}
	if price < d.low {
		d.low = price
	}
	d.close = price
	d.volume++
	return types.Bar{}, false
}

func (d *BarDetector) resetTo(barStart int64, price float64) {
	d.barStart = barStart
	d.open, d.high, d.low, d.close = price, price, price, price
	d.volume = 1
}

func (d *BarDetector) buildBar() types.Bar {
	return types.Bar{
		Symbol: d.symbol,
		Time:   d.barStart,
		Open:   d.open,
		High:   d.high,
		Low:    d.low,
		Close:  d.close,
		Volume: d.volume,
	}
}
