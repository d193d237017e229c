package types

import "fmt"

// Timeframe is a fixed bar duration in seconds (glossary: Timeframe).
type Timeframe int64

// Recognized timeframes. Any positive multiple of a second is technically
// valid; these are the ones the broker and model bundles are expected to use.
const (
	Timeframe1Min  Timeframe = 60
	Timeframe5Min  Timeframe = 300
	Timeframe15Min Timeframe = 900
	Timeframe30Min Timeframe = 1800
	Timeframe1Hour Timeframe = 3600
	Timeframe4Hour Timeframe = 14400
	Timeframe1Day  Timeframe = 86400
)

// Bar is an immutable closed OHLCV candle (§3 Data Model).
type Bar struct {
	Symbol string
	Time   int64 // epoch seconds, aligned to Time % period == 0
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// AlignedTo reports whether the bar's timestamp sits on the timeframe's grid.
func (b Bar) AlignedTo(tf Timeframe) bool {
	return b.Time%int64(tf) == 0
}

// BarStart floors an epoch-second timestamp to the start of its bar for tf.
func BarStart(epochSeconds int64, tf Timeframe) int64 {
	period := int64(tf)
	return (epochSeconds / period) * period
}

func (b Bar) String() string {
	return fmt.Sprintf("Bar{%s@%d O=%.5f H=%.5f L=%.5f C=%.5f V=%.2f}",
		b.Symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume)
}

// Tick is a single trade print from the broker's stream (§4.4 input).
type Tick struct {
	Symbol string
	Time   int64 // epoch seconds
	Price  float64
}
