package feature

import (
	"math"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func makeBars(n int, start float64, step float64) []types.Bar {
	bars := make([]types.Bar, n)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		bars[i] = types.Bar{
			Symbol: "EURUSD",
			Time:   int64(i) * 60,
			Open:   c,
			High:   c + 0.0005,
			Low:    c - 0.0005,
			Close:  c,
			Volume: 100 + float64(i),
		}
	}
	return bars
}

func TestHMMFeaturesDeterministic(t *testing.T) {
	bars := makeBars(60, 1.1000, 0.0001)
	params := HMMParams{MomentumPeriod: 20, ConsistencyPeriod: 20, RangePeriod: 20}

	a := HMMFeatures(bars, params)
	b := HMMFeatures(bars, params)
	if a != b {
		t.Fatalf("HMMFeatures is not deterministic: %v vs %v", a, b)
	}

	for i, v := range a {
		if math.IsNaN(v) {
			t.Errorf("feature %d is NaN", i)
		}
	}
}

func TestHMMFeaturesClipping(t *testing.T) {
	// A huge move should clip the momentum feature into [-5, 5].
	bars := makeBars(30, 1.0, 0.5)
	params := HMMParams{MomentumPeriod: 20, ConsistencyPeriod: 20, RangePeriod: 20}
	f := HMMFeatures(bars, params)
	if f[0] < -5 || f[0] > 5 {
		t.Errorf("momentum feature %f not clipped to [-5,5]", f[0])
	}
}

func TestConsistencyAllUp(t *testing.T) {
	bars := makeBars(30, 1.1, 0.0001)
	c := consistency(bars, 20)
	if c <= 0.9 {
		t.Errorf("expected strong positive consistency for monotonic uptrend, got %f", c)
	}
}

func TestRangePositionBounds(t *testing.T) {
	bars := makeBars(30, 1.1, 0.0001)
	r := rangePosition(bars, 20)
	if r < -1 || r > 1 {
		t.Errorf("range position %f out of [-1,1]", r)
	}
}

func TestPolicyFeaturesLength(t *testing.T) {
	bars := makeBars(60, 1.1, 0.0001)
	params := PolicyParams{ROCPeriod: 10, ATRPeriod: 14, EMAPeriod: 20, RangePeriod: 20, VolumeMAPeriod: 20, NumHMMStates: 3}
	feats := PolicyFeatures(bars, 1, PositionInput{Direction: types.DirectionLong, Intensity: 2, FloatingPnL: 15}, params)

	want := 6 + params.NumHMMStates + 3
	if len(feats) != want {
		t.Fatalf("expected %d features, got %d", want, len(feats))
	}

	// one-hot block: only index 1 (6 + hmmState) should be 1.
	for s := 0; s < params.NumHMMStates; s++ {
		idx := 6 + s
		if s == 1 && feats[idx] != 1.0 {
			t.Errorf("expected one-hot at state 1 to be 1.0, got %f", feats[idx])
		}
		if s != 1 && feats[idx] != 0.0 {
			t.Errorf("expected one-hot at state %d to be 0.0, got %f", s, feats[idx])
		}
	}

	posIdx := 6 + params.NumHMMStates
	if feats[posIdx] != float64(types.DirectionLong) {
		t.Errorf("direction feature = %f, want %f", feats[posIdx], float64(types.DirectionLong))
	}
	if feats[posIdx+1] != 20 {
		t.Errorf("intensity*10 feature = %f, want 20", feats[posIdx+1])
	}
}

func TestPolicyFeaturesNoNaN(t *testing.T) {
	// An empty/short window (warming up) must never produce NaN.
	bars := makeBars(3, 1.1, 0.0001)
	params := PolicyParams{ROCPeriod: 10, ATRPeriod: 14, EMAPeriod: 20, RangePeriod: 20, VolumeMAPeriod: 20, NumHMMStates: 3}
	feats := PolicyFeatures(bars, 0, PositionInput{}, params)
	for i, v := range feats {
		if math.IsNaN(v) {
			t.Errorf("feature %d is NaN on short window", i)
		}
	}
}
