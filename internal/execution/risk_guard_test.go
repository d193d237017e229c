package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func baseAccount() types.Account {
	return types.Account{Balance: 10000, Equity: 10000, FreeMargin: 10000}
}

func baseMeta() types.SymbolMetadata {
	return types.SymbolMetadata{Symbol: "EURUSD", PipValuePerLot: 10, Digits: 5}
}

func baseSymbolConfig() types.SymbolConfig {
	return types.SymbolConfig{Symbol: "EURUSD", Enabled: true, MaxSpreadPips: 5}
}

func TestRiskGuardDrawdownEmergency(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.InitialBalance = 10000
	g := NewRiskGuard(cfg)

	account := types.Account{Balance: 8900, Equity: 8900, FreeMargin: 8900}
	err := g.CheckOrder("EURUSD", 0.1, account, baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if !errors.Is(err, types.ErrEmergency) {
		t.Fatalf("expected ErrEmergency, got %v", err)
	}
}

func TestRiskGuardDrawdownLimit(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.InitialBalance = 10000
	g := NewRiskGuard(cfg)

	account := types.Account{Balance: 9450, Equity: 9450, FreeMargin: 9450} // dd = 5.5%
	err := g.CheckOrder("EURUSD", 0.1, account, baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if !errors.Is(err, types.ErrDrawdownLimit) {
		t.Fatalf("expected ErrDrawdownLimit, got %v", err)
	}
}

func TestRiskGuardInsufficientMargin(t *testing.T) {
	g := NewRiskGuard(DefaultRiskGuardConfig())
	account := types.Account{Balance: 10000, Equity: 10000, FreeMargin: 50}
	err := g.CheckOrder("EURUSD", 1.0, account, baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if !errors.Is(err, types.ErrInsufficientMargin) {
		t.Fatalf("expected ErrInsufficientMargin, got %v", err)
	}
}

func TestRiskGuardSpreadExceeded(t *testing.T) {
	g := NewRiskGuard(DefaultRiskGuardConfig())
	err := g.CheckOrder("EURUSD", 0.1, baseAccount(), baseMeta(), baseSymbolConfig(), alwaysFreshSpread(12))
	if !errors.Is(err, types.ErrSpreadExceeded) {
		t.Fatalf("expected ErrSpreadExceeded, got %v", err)
	}
}

func TestRiskGuardSpreadUnknownFailsClosed(t *testing.T) {
	g := NewRiskGuard(DefaultRiskGuardConfig())
	unknown := func(symbol string) (float64, bool) { return 0, false }
	err := g.CheckOrder("EURUSD", 0.1, baseAccount(), baseMeta(), baseSymbolConfig(), unknown)
	if !errors.Is(err, types.ErrSpreadUnknown) {
		t.Fatalf("expected ErrSpreadUnknown, got %v", err)
	}
}

func TestRiskGuardSpreadUnknownFailsOpenWhenConfigured(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.AllowFailOpenSpread = true
	g := NewRiskGuard(cfg)
	unknown := func(symbol string) (float64, bool) { return 0, false }
	err := g.CheckOrder("EURUSD", 0.1, baseAccount(), baseMeta(), baseSymbolConfig(), unknown)
	if err != nil {
		t.Fatalf("expected fail-open dev override to pass, got %v", err)
	}
}

func TestRiskGuardCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.MaxConsecutiveLosses = 2
	g := NewRiskGuard(cfg)

	g.RecordResult(-10)
	g.RecordResult(-10)

	err := g.CheckOrder("EURUSD", 0.1, baseAccount(), baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if !errors.Is(err, types.ErrCircuitBreakerOpen) {
		t.Fatalf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestRiskGuardRecordResultResetsOnWin(t *testing.T) {
	g := NewRiskGuard(DefaultRiskGuardConfig())
	g.RecordResult(-10)
	g.RecordResult(-10)
	g.RecordResult(5)
	if g.ConsecutiveLosses() != 0 {
		t.Fatalf("expected counter reset after a win, got %d", g.ConsecutiveLosses())
	}
}

// §8 Testable Property 5: risk ordering — drawdown before margin before
// spread before circuit breaker; a higher-priority failure masks lower ones.
func TestRiskGuardOrderingDrawdownBeforeMargin(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.InitialBalance = 10000
	g := NewRiskGuard(cfg)

	// Both an emergency drawdown AND insufficient margin are true; drawdown
	// must be reported, not margin.
	account := types.Account{Balance: 8900, Equity: 8900, FreeMargin: 1}
	err := g.CheckOrder("EURUSD", 10, account, baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if !errors.Is(err, types.ErrEmergency) {
		t.Fatalf("expected drawdown to take priority over margin, got %v", err)
	}
}

func TestRiskGuardCircuitBreakerRearmsAfterCooldown(t *testing.T) {
	cfg := DefaultRiskGuardConfig()
	cfg.MaxConsecutiveLosses = 1
	cfg.CooldownPeriod = time.Millisecond
	g := NewRiskGuard(cfg)
	g.RecordResult(-10)

	time.Sleep(5 * time.Millisecond)
	err := g.CheckOrder("EURUSD", 0.1, baseAccount(), baseMeta(), baseSymbolConfig(), alwaysFreshSpread(1))
	if err != nil {
		t.Fatalf("expected breaker to re-arm after cooldown, got %v", err)
	}
}
