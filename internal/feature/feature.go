// Package feature implements the pure, stateless feature computations the
// trained HMM and policy models expect (spec §4.1). Every function here is
// a pure projection of a right-aligned window of bars onto a fixed-length
// float64 vector; none of them hold state or perform I/O. The 1e-6 parity
// contract against the training environment (§8 property 1) lives entirely
// in these formulas, so changes here must be made with the archive's
// training code as the reference, never "simplified".
package feature

import (
	"math"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// HMMParams configures the three HMM-input features (§4.1).
type HMMParams struct {
	MomentumPeriod    int
	ConsistencyPeriod int
	RangePeriod       int
}

// PolicyParams configures the policy feature vector (§4.1).
type PolicyParams struct {
	ROCPeriod      int
	ATRPeriod      int
	EMAPeriod      int
	RangePeriod    int
	VolumeMAPeriod int
	NumHMMStates   int
}

// PositionInput carries the three virtual-position-derived policy features
// (§4.1 items 7..9, after the HMM one-hot block).
type PositionInput struct {
	Direction   types.Direction
	Intensity   types.Intensity
	FloatingPnL float64
}

func clip(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// closes/highs/lows/volumes project a bar window to parallel float64 slices.
func closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// tailWindow returns the last n elements of bars (or all of them if the
// window is shorter), right-aligned — every feature formula operates on a
// right-aligned suffix of the buffer.
func tailWindow(bars []types.Bar, n int) []types.Bar {
	if n <= 0 || n > len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

// logReturnSum returns the rolling sum of log-returns over the last `period`
// bars of the window (§4.1 HMM feature (a)).
func logReturnSum(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period+1)
	if len(w) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(w); i++ {
		prev, cur := w[i-1].Close, w[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		sum += math.Log(cur / prev)
	}
	return sum
}

// consistency is §4.1 HMM feature (b): signed directional agreement.
func consistency(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period+1)
	if len(w) < 2 {
		return 0
	}
	up, down := 0, 0
	for i := 1; i < len(w); i++ {
		d := w[i].Close - w[i-1].Close
		switch {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}
	n := len(w) - 1
	if n == 0 {
		return 0
	}
	maxCount := up
	if down > maxCount {
		maxCount = down
	}
	magnitude := float64(maxCount)/float64(n)*2 - 1
	sign := 1.0
	if down > up {
		sign = -1.0
	} else if up == down {
		sign = 0.0
	}
	return clip(magnitude*sign, -1, 1)
}

// rangePosition is §4.1 HMM feature (c) / policy feature 4: where the
// current close sits within the high-low range of the window.
func rangePosition(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period)
	if len(w) == 0 {
		return 0
	}
	hi, lo := w[0].High, w[0].Low
	for _, b := range w[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	if hi == lo {
		return 0
	}
	close := w[len(w)-1].Close
	return clip(safeDiv(close-lo, hi-lo)*2-1, -1, 1)
}

// HMMFeatures computes the 3-scalar HMM feature vector (§4.1).
func HMMFeatures(bars []types.Bar, p HMMParams) [3]float64 {
	momentum := clip(logReturnSum(bars, p.MomentumPeriod)*100, -5, 5)
	cons := consistency(bars, p.ConsistencyPeriod)
	rng := rangePosition(bars, p.RangePeriod)
	return [3]float64{momentum, cons, rng}
}

// trueRange is the standard True Range of bar i against the prior close.
func trueRange(prevClose float64, b types.Bar) float64 {
	hl := b.High - b.Low
	hc := math.Abs(b.High - prevClose)
	lc := math.Abs(b.Low - prevClose)
	tr := hl
	if hc > tr {
		tr = hc
	}
	if lc > tr {
		tr = lc
	}
	return tr
}

// atr is the rolling mean True Range over the last `period` bars.
func atr(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period+1)
	if len(w) < 2 {
		return 0
	}
	sum := 0.0
	n := 0
	for i := 1; i < len(w); i++ {
		sum += trueRange(w[i-1].Close, w[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ema is the standard exponential moving average over the last `period`
// bars of the window, seeded with a simple mean of the first bar.
func ema(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period)
	if len(w) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1.0)
	val := w[0].Close
	for _, b := range w[1:] {
		val = alpha*b.Close + (1-alpha)*val
	}
	return val
}

func volumeMA(bars []types.Bar, period int) float64 {
	w := tailWindow(bars, period)
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range w {
		sum += b.Volume
	}
	return sum / float64(len(w))
}

// hourOfDay extracts the UTC hour-of-day (0..23) a bar's epoch timestamp
// falls in, for the cyclical time-of-day feature.
func hourOfDay(epochSeconds int64) int {
	secondsOfDay := epochSeconds % 86400
	if secondsOfDay < 0 {
		secondsOfDay += 86400
	}
	return int(secondsOfDay / 3600)
}

// PolicyFeatures computes the fixed-length policy feature vector: 6 market
// features, a one-hot of the current HMM state, and 3 position features
// (§4.1).
func PolicyFeatures(bars []types.Bar, hmmState int, pos PositionInput, p PolicyParams) []float64 {
	out := make([]float64, 0, 6+p.NumHMMStates+3)

	w := tailWindow(bars, p.ROCPeriod+1)
	var rocFeature float64
	if len(w) >= p.ROCPeriod+1 {
		closeNow := w[len(w)-1].Close
		closeThen := w[0].Close
		rocFeature = math.Tanh(safeDiv(closeNow-closeThen, closeThen) * 20)
	}
	out = append(out, rocFeature)

	lastClose := 0.0
	if len(bars) > 0 {
		lastClose = bars[len(bars)-1].Close
	}
	atrVal := atr(bars, p.ATRPeriod)
	out = append(out, math.Tanh(safeDiv(atrVal, lastClose)*50))

	emaVal := ema(bars, p.EMAPeriod)
	out = append(out, math.Tanh(safeDiv(lastClose-emaVal, emaVal)*20))

	out = append(out, rangePosition(bars, p.RangePeriod))

	volMA := volumeMA(bars, p.VolumeMAPeriod)
	lastVolume := 0.0
	if len(bars) > 0 {
		lastVolume = bars[len(bars)-1].Volume
	}
	out = append(out, math.Tanh((safeDiv(lastVolume, volMA)-1)*2))

	hod := 0
	if len(bars) > 0 {
		hod = hourOfDay(bars[len(bars)-1].Time)
	}
	out = append(out, math.Sin(2*math.Pi*float64(hod)/24))

	for s := 0; s < p.NumHMMStates; s++ {
		if s == hmmState {
			out = append(out, 1.0)
		} else {
			out = append(out, 0.0)
		}
	}

	out = append(out, float64(pos.Direction))
	out = append(out, float64(pos.Intensity)*10)
	out = append(out, math.Tanh(pos.FloatingPnL/100))

	return out
}
