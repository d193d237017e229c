package execution

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/broker"
	"github.com/riverline-quant/predictor-core/pkg/types"
	"github.com/riverline-quant/predictor-core/pkg/utils"
)

// ExecutorConfig configures the Executor (§4.11, §6 CLI surface dry-run).
type ExecutorConfig struct {
	DryRun bool // risk gates still evaluated, but no orders are sent (§6)
}

// Executor ties the sync state machine, risk guard, and price converter to
// a broker bridge, turning each incoming Signal into exactly one Ack
// (§4.11, §8 Testable Property 6 "ACK totality").
type Executor struct {
	logger *zap.Logger
	bridge broker.Bridge
	risk   *RiskGuard
	conv   *PriceConverter
	config ExecutorConfig
	spread SpreadLookup

	mu     sync.Mutex
	paused bool
	syncs  map[string]*SyncMachine
	cfgs   map[string]types.SymbolConfig
}

// NewExecutor builds an Executor. symbolConfigs maps symbol -> its trading
// configuration (§6 symbol configuration file); spread is the
// Orchestrator-owned spread map reader (§4.13).
func NewExecutor(bridge broker.Bridge, risk *RiskGuard, conv *PriceConverter, symbolConfigs map[string]types.SymbolConfig, spread SpreadLookup, config ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		logger: logger,
		bridge: bridge,
		risk:   risk,
		conv:   conv,
		config: config,
		spread: spread,
		syncs:  make(map[string]*SyncMachine),
		cfgs:   symbolConfigs,
	}
}

// Pause stops the executor from issuing new orders; existing positions are
// left untouched. ACKs continue to be returned (SKIP/PAUSED).
func (e *Executor) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume clears a prior Pause.
func (e *Executor) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

func (e *Executor) syncFor(symbol string) *SyncMachine {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.syncs[symbol]
	if !ok {
		m = NewSyncMachine(symbol)
		e.syncs[symbol] = m
	}
	return m
}

// Execute runs the full §4.11 decision pipeline for one Signal, returning
// exactly one Ack. It never returns an error — every outcome, including
// unexpected broker failures, is encoded in the Ack itself, per the "no
// silent swallow" policy of §7.
func (e *Executor) Execute(ctx context.Context, sig types.Signal) types.Ack {
	cfg, ok := e.cfgs[sig.Symbol]
	if !ok || !cfg.Enabled {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: "DISABLED"}
	}

	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: "PAUSED"}
	}

	realPos, hasReal, err := e.bridge.GetPosition(ctx, sig.Symbol)
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: reasonFor(err)}
	}
	realDir := types.DirectionFlat
	if hasReal {
		realDir = realPos.Direction
	}

	machine := e.syncFor(sig.Symbol)
	decision, shouldOpen := machine.Evaluate(realDir, sig.Direction)

	switch decision {
	case types.DecisionNoop:
		return types.Ack{Symbol: sig.Symbol, Status: types.AckOK, Reason: "SYNCED"}

	case types.DecisionClose:
		return e.executeClose(ctx, sig, realPos)

	case types.DecisionWaitSync:
		if !shouldOpen {
			return types.Ack{Symbol: sig.Symbol, Status: types.AckWaiting, Reason: "WAITING_SYNC"}
		}
		return e.executeOpen(ctx, sig, cfg)

	default:
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: "UNKNOWN_DECISION"}
	}
}

func (e *Executor) executeClose(ctx context.Context, sig types.Signal, realPos types.RealPosition) types.Ack {
	if e.config.DryRun {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckOK, Reason: "CLOSED", Ticket: realPos.Ticket}
	}
	result, err := e.bridge.CloseOrder(ctx, realPos.Ticket)
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: reasonFor(err)}
	}
	realizedPnL := realPos.FloatingPnL
	e.risk.RecordResult(realizedPnL)
	return types.Ack{Symbol: sig.Symbol, Status: types.AckOK, Reason: "CLOSED", Ticket: result.Ticket, FillPrice: result.ExecutedPrice}
}

func (e *Executor) executeOpen(ctx context.Context, sig types.Signal, cfg types.SymbolConfig) types.Ack {
	volume := cfg.LotMap[sig.Intensity]
	if volume == 0 {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: "ZERO_LOT"}
	}

	account, err := e.bridge.GetAccount(ctx)
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: reasonFor(err)}
	}
	meta, err := e.bridge.GetSymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: reasonFor(err)}
	}
	volume = utils.ClampVolume(volume, meta.VolumeMin, meta.VolumeStep, meta.VolumeMax)
	if volume <= 0 {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: "ZERO_LOT"}
	}

	if err := e.risk.CheckOrder(sig.Symbol, volume, account, meta, cfg, e.spread); err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: reasonFor(err)}
	}

	slPrice, tpPrice, err := e.conv.StopLevels(sig.Symbol, sig.Direction, sig.ClosePrice, cfg.SLUSD, cfg.TPUSD, volume, meta)
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckSkip, Reason: reasonFor(err)}
	}

	dd := 0.0
	if e.risk.cfg.InitialBalance > 0 {
		dd = (e.risk.cfg.InitialBalance - account.Equity) / e.risk.cfg.InitialBalance * 100
	}
	comment := BuildAuditComment(sig.HMMState, int(sig.Action), int(sig.Intensity), account.Balance, dd, sig.VirtualPnL)

	if e.config.DryRun {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckOK, Reason: "DRY_RUN_OPEN", FillPrice: sig.ClosePrice}
	}

	result, err := e.bridge.OpenOrder(ctx, broker.OrderRequest{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Volume:    volume,
		SL:        slPrice,
		TP:        tpPrice,
		Comment:   comment,
	})
	if err != nil {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: reasonFor(err)}
	}
	if !result.Success {
		return types.Ack{Symbol: sig.Symbol, Status: types.AckError, Reason: result.ErrorCategory}
	}
	return types.Ack{Symbol: sig.Symbol, Status: types.AckOK, Reason: "OPENED", Ticket: result.Ticket, FillPrice: result.ExecutedPrice}
}

func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	default:
		return fmt.Sprintf("%v", err)
	}
}
