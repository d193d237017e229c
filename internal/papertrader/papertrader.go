// Package papertrader runs the same virtual-position rules as the
// predictor against a separate simulated account, using training-time cost
// parameters, so drift between model-as-trained and execution-as-delivered
// can be quantified (spec §4.14). Grounded on the in-memory paper-broker
// idiom of keeping one mutable simulated account per symbol with no
// external calls.
package papertrader

import (
	"sync"
	"time"

	"github.com/riverline-quant/predictor-core/internal/predictor"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Trade is one paper fill, persisted alongside real trades and
// distinguished by the Paper flag (§4.14).
type Trade struct {
	Symbol      string
	Paper       bool
	Action      types.Action
	Price       float64
	RealizedPnL float64
	Balance     float64
	Timestamp   time.Time
}

// Account is the paper trader's simulated account for one symbol, seeded
// from the model bundle's training-time cost parameters.
type Account struct {
	Balance  float64
	position types.VirtualPosition
}

// Trader runs one simulated account per symbol. The only coupling to the
// rest of the system is that it is invoked with the same Signal the
// Executor receives, at the same point in the pipeline (§4.14).
type Trader struct {
	mu       sync.Mutex
	accounts map[string]*Account
	trades   []Trade
}

// NewTrader builds an empty paper trader.
func NewTrader() *Trader {
	return &Trader{accounts: make(map[string]*Account)}
}

// Seed registers symbol's simulated account with the training-time cost
// parameters and initial balance carried in its model bundle metadata.
func (t *Trader) Seed(symbol string, costs types.CostParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accounts[symbol] = &Account{
		Balance:  costs.InitialBalance,
		position: types.VirtualPosition{Symbol: symbol, Costs: costs},
	}
}

// OnSignal applies sig's action at the given bar close to the simulated
// account, recording a Trade. No-op for symbols never Seed-ed.
func (t *Trader) OnSignal(sig types.Signal, barClose float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc, ok := t.accounts[sig.Symbol]
	if !ok {
		return
	}
	realized := predictor.UpdatePosition(&acc.position, sig.Action, barClose)
	acc.Balance += realized

	t.trades = append(t.trades, Trade{
		Symbol:      sig.Symbol,
		Paper:       true,
		Action:      sig.Action,
		Price:       barClose,
		RealizedPnL: realized,
		Balance:     acc.Balance,
		Timestamp:   now,
	})
}

// Trades returns a copy of every recorded paper trade, for telemetry
// egress.
func (t *Trader) Trades() []Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Balance returns symbol's current simulated balance.
func (t *Trader) Balance(symbol string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.accounts[symbol]
	if !ok {
		return 0, false
	}
	return acc.Balance, true
}

// Drift reports the divergence between a symbol's paper balance and the
// real account balance supplied by the caller, used to diagnose whether
// underperformance is a model problem or an execution problem (§4.14
// glossary: Drift).
func (t *Trader) Drift(symbol string, realBalance float64) (float64, bool) {
	paperBalance, ok := t.Balance(symbol)
	if !ok {
		return 0, false
	}
	return realBalance - paperBalance, true
}
