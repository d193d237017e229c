// Package execution implements the Executor pipeline: pre-trade risk gates,
// USD-to-price conversion, the sync state machine, and the executor itself
// that ties them to a broker bridge (spec §4.8-§4.12).
package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// RiskGuardConfig configures the pre-trade gates (§4.8).
type RiskGuardConfig struct {
	DrawdownLimitPct     float64
	DrawdownEmergencyPct float64
	InitialBalance       float64
	MaxConsecutiveLosses int
	CooldownPeriod       time.Duration
	AllowFailOpenSpread  bool // deliberate dev-only override of the default fail-closed spread policy (§9)
}

// DefaultRiskGuardConfig mirrors the spec's stated defaults (§4.8).
func DefaultRiskGuardConfig() RiskGuardConfig {
	return RiskGuardConfig{
		DrawdownLimitPct:     5,
		DrawdownEmergencyPct: 10,
		MaxConsecutiveLosses: 5,
		CooldownPeriod:       60 * time.Minute,
	}
}

// RiskGuard evaluates the ordered pre-trade gates of §4.8: drawdown, margin,
// spread, circuit breaker. First failure short-circuits the remaining
// gates (§8 Testable Property 5).
type RiskGuard struct {
	mu     sync.Mutex
	cfg    RiskGuardConfig
	consecutiveLosses int
	breakerOpenedAt   time.Time
	breakerOpen       bool
}

// NewRiskGuard builds a RiskGuard with the given configuration.
func NewRiskGuard(cfg RiskGuardConfig) *RiskGuard {
	return &RiskGuard{cfg: cfg}
}

// SpreadLookup resolves the cached current spread (in pips) for a symbol,
// as published by the Orchestrator's spread-refresh loop (§4.13). The
// second return is false when no fresh value has ever been published.
type SpreadLookup func(symbol string) (pips float64, ok bool)

// CheckOrder runs the four ordered gates for opening volume lots on symbol.
// account and meta are the broker-authoritative snapshots fetched
// immediately before the call; spread reads the shared spread map.
func (g *RiskGuard) CheckOrder(symbol string, volume float64, account types.Account, meta types.SymbolMetadata, cfg types.SymbolConfig, spread SpreadLookup) error {
	if err := g.checkDrawdown(account); err != nil {
		return err
	}
	if err := g.checkMargin(volume, account, meta); err != nil {
		return err
	}
	if err := g.checkSpread(symbol, cfg, spread); err != nil {
		return err
	}
	if err := g.checkCircuitBreaker(); err != nil {
		return err
	}
	return nil
}

// checkDrawdown and checkMargin compare account-balance/margin money through
// decimal.Decimal rather than float64: unlike the feature/virtual-position
// parity path (§9 design note), this arithmetic has no training-environment
// float contract to match, so it takes the same precision the teacher's
// pkg/types reaches for everywhere else money is involved.
func (g *RiskGuard) checkDrawdown(account types.Account) error {
	if g.cfg.InitialBalance <= 0 {
		return nil
	}
	initial := decimal.NewFromFloat(g.cfg.InitialBalance)
	equity := decimal.NewFromFloat(account.Equity)
	dd := initial.Sub(equity).Div(initial).Mul(decimal.NewFromInt(100))
	ddFloat, _ := dd.Float64()

	if dd.GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.DrawdownEmergencyPct)) {
		return fmt.Errorf("drawdown %.2f%% >= emergency %.2f%%: %w", ddFloat, g.cfg.DrawdownEmergencyPct, types.ErrEmergency)
	}
	if dd.GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.DrawdownLimitPct)) {
		return fmt.Errorf("drawdown %.2f%% >= limit %.2f%%: %w", ddFloat, g.cfg.DrawdownLimitPct, types.ErrDrawdownLimit)
	}
	return nil
}

func (g *RiskGuard) checkMargin(volume float64, account types.Account, meta types.SymbolMetadata) error {
	// conservative margin estimate: 100 pips notional per lot
	required := decimal.NewFromFloat(volume).Mul(decimal.NewFromFloat(meta.PipValuePerLot)).Mul(decimal.NewFromInt(100))
	free := decimal.NewFromFloat(account.FreeMargin)
	if free.LessThan(required) {
		requiredFloat, _ := required.Float64()
		return fmt.Errorf("free margin %.2f < required %.2f: %w", account.FreeMargin, requiredFloat, types.ErrInsufficientMargin)
	}
	return nil
}

func (g *RiskGuard) checkSpread(symbol string, cfg types.SymbolConfig, spread SpreadLookup) error {
	if cfg.MaxSpreadPips <= 0 {
		return nil
	}
	pips, ok := spread(symbol)
	if !ok {
		if g.cfg.AllowFailOpenSpread {
			return nil
		}
		return fmt.Errorf("spread unknown for %s: %w", symbol, types.ErrSpreadUnknown)
	}
	if pips > cfg.MaxSpreadPips {
		return fmt.Errorf("spread %.1f pips > max %.1f for %s: %w", pips, cfg.MaxSpreadPips, symbol, types.ErrSpreadExceeded)
	}
	return nil
}

func (g *RiskGuard) checkCircuitBreaker() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.breakerOpen {
		if time.Since(g.breakerOpenedAt) >= g.cfg.CooldownPeriod {
			g.breakerOpen = false
			g.consecutiveLosses = 0
			return nil
		}
		return fmt.Errorf("circuit breaker open, cooldown until %s: %w",
			g.breakerOpenedAt.Add(g.cfg.CooldownPeriod).Format(time.RFC3339), types.ErrCircuitBreakerOpen)
	}
	return nil
}

// RecordResult updates the consecutive-loss counter (§4.8): increment on a
// losing trade, reset on a non-losing one. Arms the circuit breaker once
// the configured threshold is reached.
func (g *RiskGuard) RecordResult(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pnl < 0 {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}
	if g.cfg.MaxConsecutiveLosses > 0 && g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses && !g.breakerOpen {
		g.breakerOpen = true
		g.breakerOpenedAt = time.Now()
	}
}

// ConsecutiveLosses reports the current streak, for diagnostics/tests.
func (g *RiskGuard) ConsecutiveLosses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutiveLosses
}
