package execution

import (
	"math"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// S5 — USD -> price conversion.
func TestPriceConverterS5EURUSD(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "EURUSD", PipValuePerLot: 10.0, Digits: 5}

	sl, tp, err := c.StopLevels("EURUSD", types.DirectionLong, 1.10000, 10, 0, 0.03, meta)
	if err != nil {
		t.Fatalf("StopLevels: %v", err)
	}
	wantSL := round(1.10000-33.33*0.0001, 5)
	if math.Abs(sl-wantSL) > 1e-5 {
		t.Errorf("sl = %f, want ~%f", sl, wantSL)
	}
	if tp != 0 {
		t.Errorf("expected tp=0 for usd=0, got %f", tp)
	}
}

func TestPriceConverterJPYUsesThreeDigitPrecision(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "USDJPY", PipValuePerLot: 9.30, Digits: 3}

	sl, _, err := c.StopLevels("USDJPY", types.DirectionLong, 150.000, 10, 0, 0.1, meta)
	if err != nil {
		t.Fatalf("StopLevels: %v", err)
	}
	if sl >= 150.000 {
		t.Errorf("expected long SL below entry, got %f", sl)
	}
}

func TestPriceConverterFallsBackToStaticTable(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "EURUSD", Digits: 5} // no PipValuePerLot from broker

	sl, _, err := c.StopLevels("EURUSD", types.DirectionLong, 1.1, 10, 0, 0.1, meta)
	if err != nil {
		t.Fatalf("expected fallback table to resolve pip value, got error: %v", err)
	}
	if sl == 0 {
		t.Error("expected nonzero SL using fallback pip value")
	}
}

func TestPriceConverterUnknownSymbolFailsClosed(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "XYZABC", Digits: 5}

	_, _, err := c.StopLevels("XYZABC", types.DirectionLong, 1.1, 10, 0, 0.1, meta)
	if err == nil {
		t.Fatal("expected error for unknown symbol with no pip value source")
	}
}

// §8 Testable Property 7: price-converter round trip.
func TestPriceConverterRoundTrip(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "EURUSD", PipValuePerLot: 10.0, Digits: 5}
	usd := 25.0
	volume := 0.05

	dist, err := c.USDToDistance("EURUSD", usd, volume, meta)
	if err != nil {
		t.Fatalf("USDToDistance: %v", err)
	}
	// Recompute USD from the distance: distance = usd/(pipValue*volume)*pipSize
	// => usd_recovered = distance/pipSize*pipValue*volume
	recoveredUSD := dist / pipSize(meta.Digits) * meta.PipValuePerLot * volume
	if math.Abs(recoveredUSD-usd) > 1e-6 {
		t.Errorf("round trip usd = %f, want %f", recoveredUSD, usd)
	}
}

func TestPriceConverterZeroUSDMeansNotSet(t *testing.T) {
	c := NewPriceConverter()
	meta := types.SymbolMetadata{Symbol: "EURUSD", PipValuePerLot: 10.0, Digits: 5}
	dist, err := c.USDToDistance("EURUSD", 0, 0.1, meta)
	if err != nil || dist != 0 {
		t.Fatalf("got (%f, %v), want (0, nil)", dist, err)
	}
}
