// Package orchestrator bootstraps and runs the trading process: given
// already-loaded configuration and model bundles, it fast-forwards every symbol's predictor
// through warmup history, starts one concurrent bar-processing task per
// symbol, and owns the process-wide loops (spread refresh, heartbeat,
// telemetry retry, day-boundary) plus the graceful shutdown sequence
// (§4.12/§5/§6).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/broker"
	"github.com/riverline-quant/predictor-core/internal/events"
	"github.com/riverline-quant/predictor-core/internal/execution"
	"github.com/riverline-quant/predictor-core/internal/modelbundle"
	"github.com/riverline-quant/predictor-core/internal/papertrader"
	"github.com/riverline-quant/predictor-core/internal/predictor"
	"github.com/riverline-quant/predictor-core/internal/session"
	"github.com/riverline-quant/predictor-core/internal/telemetry"
	"github.com/riverline-quant/predictor-core/internal/workers"
	"github.com/riverline-quant/predictor-core/pkg/types"
	"github.com/riverline-quant/predictor-core/pkg/utils"
)

// WarmupBars is the default number of historical bars fast-forwarded
// through each symbol's predictor at startup: the buffer capacity plus a
// stabilization margin (§4.6 "typically 1000").
const WarmupBars = 1000

// Config configures the Orchestrator's own loops; broker, risk, and symbol
// configuration are supplied as already-loaded values (§6).
type Config struct {
	Timeframe           types.Timeframe
	CloseOnExit         bool
	CloseOnDayChange    bool
	SpreadRefreshPeriod time.Duration // default 30s (§4.13)
	HeartbeatPeriod     time.Duration // default from health.heartbeat_interval_s
	SymbolTimeout       time.Duration // default from health.symbol_timeout_s (§5 backpressure)
	ShutdownGrace       time.Duration // default 10s (§5)
}

// DefaultConfig returns the spec's stated default periods (§4.13, §5, §6).
func DefaultConfig() Config {
	return Config{
		Timeframe:           types.Timeframe15Min,
		SpreadRefreshPeriod: 30 * time.Second,
		HeartbeatPeriod:     30 * time.Second,
		SymbolTimeout:       300 * time.Second,
		ShutdownGrace:       10 * time.Second,
	}
}

// Orchestrator owns every component's lifecycle through scoped handles
// acquired at Run and released at Shutdown (§3 ownership summary).
type Orchestrator struct {
	logger   *zap.Logger
	cfg      Config
	bridge   broker.Bridge
	bundles  *modelbundle.Manager
	executor *execution.Executor
	risk     *execution.RiskGuard
	paper    *papertrader.Trader
	sessions *session.Store
	bus      *events.Bus
	queue    *telemetry.RetryQueue
	pool     *workers.Pool

	symbolCfgs map[string]types.SymbolConfig
	riskParams types.RiskParams

	predictorsMu sync.RWMutex
	predictors   map[string]*predictor.Predictor

	spreadMu sync.RWMutex
	spread   map[string]float64

	lastBarMu sync.RWMutex
	lastBarAt map[string]time.Time

	positionsMu sync.RWMutex
	positions   map[string]types.RealPosition

	acksMu sync.Mutex
	acks   []types.Ack

	sessionMu sync.RWMutex
	sess      types.Session

	flattening chan struct{}
	flatOnce   sync.Once
}

// Deps bundles the already-constructed collaborators an Orchestrator wires
// together (§4.12 bootstrap). Every field is required.
type Deps struct {
	Bridge     broker.Bridge
	Bundles    *modelbundle.Manager
	Risk       *execution.RiskGuard
	Paper      *papertrader.Trader
	Sessions   *session.Store
	Bus        *events.Bus
	Queue      *telemetry.RetryQueue
	Pool       *workers.Pool
	SymbolCfgs map[string]types.SymbolConfig
	RiskParams types.RiskParams
}

// New builds an Orchestrator from its dependencies. It does not start any
// loop or connect to anything; call Run for that.
func New(logger *zap.Logger, cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		cfg:        cfg,
		bridge:     deps.Bridge,
		bundles:    deps.Bundles,
		risk:       deps.Risk,
		paper:      deps.Paper,
		sessions:   deps.Sessions,
		bus:        deps.Bus,
		queue:      deps.Queue,
		pool:       deps.Pool,
		symbolCfgs: deps.SymbolCfgs,
		riskParams: deps.RiskParams,
		predictors: make(map[string]*predictor.Predictor),
		spread:     make(map[string]float64),
		lastBarAt:  make(map[string]time.Time),
		positions:  make(map[string]types.RealPosition),
		flattening: make(chan struct{}),
	}
}

// AttachExecutor wires the Executor built from this Orchestrator's own
// SpreadLookup. The two are constructed in this order deliberately: the
// Executor needs a spread reader bound to this Orchestrator before it can
// exist, so Run refuses to start until AttachExecutor has been called.
func (o *Orchestrator) AttachExecutor(e *execution.Executor) {
	o.executor = e
}

// Run executes the full bootstrap sequence and blocks until ctx is
// cancelled, then runs the bounded graceful shutdown. The bootstrap order
// is load-bearing (§4.7 "install before touch", §4.12): the bridge is
// connected strictly before any subscription or model warmup touches it.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) error {
	if o.executor == nil {
		return fmt.Errorf("orchestrator: AttachExecutor must be called before Run")
	}

	prior, err := o.sessions.Load()
	if err != nil {
		return fmt.Errorf("orchestrator: loading session state: %w", err)
	}
	o.sess = o.recoverOrMintSession(prior, symbols)
	if err := o.sessions.Save(o.sess); err != nil {
		o.logger.Warn("failed to persist initial session state", zap.Error(err))
	}
	o.publishSessionStatus()

	if err := o.bridge.Connect(ctx); err != nil {
		return fmt.Errorf("orchestrator: connecting broker bridge: %w", err)
	}

	if err := o.warmupAll(ctx, symbols); err != nil {
		return fmt.Errorf("orchestrator: warmup: %w", err)
	}

	o.pool.Start()
	for _, symbol := range symbols {
		symbol := symbol
		if err := o.pool.SubmitFunc(func() error { return o.runSymbol(ctx, symbol) }); err != nil {
			o.logger.Error("failed to submit symbol task", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	go o.queue.Run(ctx)
	go o.spreadRefreshLoop(ctx, symbols)
	go o.heartbeatLoop(ctx, symbols)
	go o.dayBoundaryLoop(ctx)

	select {
	case <-ctx.Done():
	case <-o.flattening:
	}
	return o.shutdown()
}

// recoverOrMintSession implements §6's persisted-state contract: a prior
// session left RUNNING means the process crashed and this run recovers its
// identity; otherwise a fresh session id is minted.
func (o *Orchestrator) recoverOrMintSession(prior *types.Session, symbols []string) types.Session {
	now := time.Now()
	if session.IsCrashRecovery(prior) {
		o.logger.Warn("recovering session after unclean shutdown", zap.String("session_id", prior.ID))
		recovered := *prior
		recovered.LastHeartbeat = now
		return recovered
	}
	return types.Session{
		ID:             newSessionID(now),
		StartTime:      now,
		InitialBalance: o.riskParams.InitialBalance,
		Symbols:        symbols,
		Status:         types.SessionRunning,
		LastHeartbeat:  now,
	}
}

func newSessionID(now time.Time) string {
	return utils.GenerateID("sess_" + now.Format("20060102150405"))
}

// warmupAll fast-forwards every symbol's predictor over up to WarmupBars
// bars of broker history (bridge.GetHistory) without emitting Signals (§4.6
// Warmup), and seeds the paper trader with the bundle's cost parameters.
func (o *Orchestrator) warmupAll(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		bundle, ok := o.bundles.Get(symbol)
		if !ok {
			o.logger.Warn("no model bundle loaded for symbol, skipping", zap.String("symbol", symbol))
			continue
		}

		p := predictor.NewPredictor(symbol, predictor.DefaultBufferCapacity, bundle, o.logger)
		history, err := o.bridge.GetHistory(ctx, symbol, o.cfg.Timeframe, WarmupBars)
		if err != nil {
			return fmt.Errorf("fetching warmup history for %s: %w", symbol, err)
		}
		if err := p.Warmup(history); err != nil {
			return fmt.Errorf("warming up %s: %w", symbol, err)
		}

		o.predictorsMu.Lock()
		o.predictors[symbol] = p
		o.predictorsMu.Unlock()

		o.paper.Seed(symbol, bundle.Costs)
		o.logger.Info("symbol warmed up", zap.String("symbol", symbol), zap.Int("history_bars", len(history)))
	}
	return nil
}

// runSymbol is the per-symbol bar-processing task (§5: "single logical
// writer" per symbol). It subscribes to the bar stream only after warmup
// and bridge connection have already happened, processes bars in strict
// arrival order, and drives the predictor -> paper trader -> executor
// pipeline for each closed bar.
func (o *Orchestrator) runSymbol(ctx context.Context, symbol string) error {
	o.predictorsMu.RLock()
	p, ok := o.predictors[symbol]
	o.predictorsMu.RUnlock()
	if !ok {
		return nil // orphan/unmodeled symbol: left untouched (§4.10)
	}

	bars, err := o.bridge.SubscribeBars(ctx, symbol, o.cfg.Timeframe)
	if err != nil {
		return fmt.Errorf("subscribing bars for %s: %w", symbol, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case bar, chanOpen := <-bars:
			if !chanOpen {
				return nil
			}
			o.markBarSeen(symbol)
			if err := o.onBar(ctx, p, symbol, bar); err != nil {
				o.logger.Error("symbol pipeline error", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) onBar(ctx context.Context, p *predictor.Predictor, symbol string, bar types.Bar) error {
	sig, ready, err := p.OnBar(bar)
	if err != nil {
		return fmt.Errorf("predictor.OnBar: %w", err)
	}
	if !ready {
		return nil
	}

	telemetry.RecordSignal(symbol, sig.Action.String())
	telemetry.SetVirtualPnL(symbol, sig.VirtualPnL)
	o.bus.Publish(events.NewSignalEvent(sig))
	o.queue.Enqueue(telemetry.Event{Kind: "signal", Payload: sig, Timestamp: sig.EmittedAt})

	o.paper.OnSignal(sig, bar.Close, time.Now())
	if balance, ok := o.paper.Balance(symbol); ok {
		if drift, ok := o.paper.Drift(symbol, balance); ok {
			telemetry.SetPaperDrift(symbol, drift)
			o.logger.Debug("paper vs real balance drift",
				zap.String("symbol", symbol),
				zap.String("paper_balance", utils.FormatMoney(balance, "USD")),
				zap.Float64("drift_pct", drift))
		}
	}

	o.refreshPosition(ctx, symbol)

	ack := o.executor.Execute(ctx, sig)
	o.recordAck(ack)
	telemetry.RecordAck(symbol, string(ack.Status), ack.Reason)
	o.bus.Publish(events.NewAckEvent(symbol, ack))
	o.queue.Enqueue(telemetry.Event{Kind: "ack", Payload: ack, Timestamp: time.Now()})

	if ack.Status == types.AckSkip && strings.Contains(ack.Reason, types.ErrEmergency.Error()) {
		o.triggerEmergencyStop(ctx, symbol, ack.Reason)
	}

	o.refreshPosition(ctx, symbol)
	return nil
}

// refreshPosition updates the short-lived cached position view exposed to
// the API (§3: "the core holds a short-lived cached view").
func (o *Orchestrator) refreshPosition(ctx context.Context, symbol string) {
	pos, has, err := o.bridge.GetPosition(ctx, symbol)
	if err != nil {
		return
	}
	o.positionsMu.Lock()
	defer o.positionsMu.Unlock()
	if has {
		o.positions[symbol] = pos
	} else {
		delete(o.positions, symbol)
	}
}

func (o *Orchestrator) recordAck(ack types.Ack) {
	o.acksMu.Lock()
	defer o.acksMu.Unlock()
	o.acks = append(o.acks, ack)
	const maxRetained = 500
	if len(o.acks) > maxRetained {
		o.acks = o.acks[len(o.acks)-maxRetained:]
	}
}

func (o *Orchestrator) markBarSeen(symbol string) {
	o.lastBarMu.Lock()
	o.lastBarAt[symbol] = time.Now()
	o.lastBarMu.Unlock()
}

// triggerEmergencyStop implements §4.8/§7's Emergency policy: the
// Orchestrator flattens every real position and transitions the session to
// STOPPED, exactly once, regardless of how many symbols hit the gate
// concurrently.
func (o *Orchestrator) triggerEmergencyStop(ctx context.Context, symbol, reason string) {
	o.flatOnce.Do(func() {
		o.logger.Error("emergency drawdown breached, flattening all positions",
			zap.String("triggering_symbol", symbol), zap.String("reason", reason))
		o.bus.Publish(events.NewRiskAlertEvent(symbol, "emergency", reason))
		o.flattenAll(ctx)
		o.stopSession("Emergency")
		close(o.flattening)
	})
}

// flattenAll force-closes every known real position via the broker bridge.
// Individual close failures are logged, not fatal: the process still
// proceeds to STOPPED so no further opens are attempted.
func (o *Orchestrator) flattenAll(ctx context.Context) {
	positions, err := o.bridge.GetPositions(ctx)
	if err != nil {
		o.logger.Error("failed to list positions for flatten", zap.Error(err))
		return
	}
	for _, pos := range positions {
		if _, err := o.bridge.CloseOrder(ctx, pos.Ticket); err != nil {
			o.logger.Error("failed to close position during flatten",
				zap.String("symbol", pos.Symbol), zap.Uint64("ticket", pos.Ticket), zap.Error(err))
			continue
		}
		o.risk.RecordResult(pos.FloatingPnL)
	}
}

func (o *Orchestrator) stopSession(reason string) {
	o.sessionMu.Lock()
	o.sess.Status = types.SessionStopped
	o.sess.EndReason = reason
	snapshot := o.sess
	o.sessionMu.Unlock()

	if err := o.sessions.Save(snapshot); err != nil {
		o.logger.Warn("failed to persist stopped session", zap.Error(err))
	}
	o.bus.Publish(events.NewSessionStatusEvent(types.SessionStopped, reason))
}

func (o *Orchestrator) publishSessionStatus() {
	o.sessionMu.RLock()
	snap := o.sess
	o.sessionMu.RUnlock()
	o.bus.Publish(events.NewSessionStatusEvent(snap.Status, snap.EndReason))
}

// spreadRefreshLoop periodically republishes each symbol's current spread
// in pips so the Risk Guard's spread gate never silently treats a stale
// feed as fresh (§4.13). pip_multiplier is 10 for 3- and 5-digit symbols,
// 1 otherwise, matching §4.13's "actually:" clarification.
func (o *Orchestrator) spreadRefreshLoop(ctx context.Context, symbols []string) {
	period := o.cfg.SpreadRefreshPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				meta, err := o.bridge.GetSymbolInfo(ctx, symbol)
				if err != nil {
					o.logger.Warn("spread refresh: symbol info fetch failed", zap.String("symbol", symbol), zap.Error(err))
					continue
				}
				pips := spreadInPips(meta)
				o.spreadMu.Lock()
				o.spread[symbol] = pips
				o.spreadMu.Unlock()
			}
		}
	}
}

func spreadInPips(meta types.SymbolMetadata) float64 {
	multiplier := 1.0
	if meta.Digits == 3 || meta.Digits == 5 {
		multiplier = 10.0
	}
	return meta.SpreadPoints * meta.Point * multiplier
}

// SpreadLookup returns the reader closure the Risk Guard uses to consult
// the spread map published by spreadRefreshLoop (§4.8, §4.13).
func (o *Orchestrator) SpreadLookup() execution.SpreadLookup {
	return func(symbol string) (float64, bool) {
		o.spreadMu.RLock()
		defer o.spreadMu.RUnlock()
		pips, ok := o.spread[symbol]
		return pips, ok
	}
}

// heartbeatLoop persists the session's heartbeat timestamp and surfaces a
// per-symbol health alert when a symbol task falls silent beyond its
// timeout — steady-state backpressure is a bug to be surfaced, not bars to
// be silently coalesced (§5 backpressure).
func (o *Orchestrator) heartbeatLoop(ctx context.Context, symbols []string) {
	period := o.cfg.HeartbeatPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			o.sessionMu.Lock()
			o.sess.LastHeartbeat = now
			snapshot := o.sess
			o.sessionMu.Unlock()
			if err := o.sessions.Save(snapshot); err != nil {
				o.logger.Warn("failed to persist heartbeat", zap.Error(err))
			}

			for _, symbol := range symbols {
				o.lastBarMu.RLock()
				last, seen := o.lastBarAt[symbol]
				o.lastBarMu.RUnlock()
				if !seen {
					continue
				}
				if o.cfg.SymbolTimeout > 0 && now.Sub(last) > o.cfg.SymbolTimeout {
					o.logger.Error("symbol task missed heartbeat timeout", zap.String("symbol", symbol), zap.Duration("since_last_bar", now.Sub(last)))
					o.bus.Publish(events.NewRiskAlertEvent(symbol, "heartbeat_timeout", "symbol task exceeded heartbeat timeout"))
					continue
				}
				o.bus.Publish(events.NewHeartbeatEvent(symbol))
				telemetry.RecordHeartbeat(symbol)
			}
		}
	}
}

// dayBoundaryLoop watches for the UTC calendar day changing and, when
// configured, closes every real position at the boundary (§6
// trading.close_on_day_change).
func (o *Orchestrator) dayBoundaryLoop(ctx context.Context) {
	if !o.cfg.CloseOnDayChange {
		return
	}
	currentDay := time.Now().UTC().Day()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Day() == currentDay {
				continue
			}
			currentDay = now.Day()
			o.logger.Info("day boundary crossed, closing all positions")
			o.flattenAll(ctx)
		}
	}
}

// shutdown runs the bounded two-phase drain of §5: stop intake (the worker
// pool and loops are cancelled via ctx by the caller), then wait up to the
// grace period before the process is allowed to exit regardless.
func (o *Orchestrator) shutdown() error {
	grace := o.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		if o.cfg.CloseOnExit {
			flattenCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			o.flattenAll(flattenCtx)
		}
		if err := o.pool.Stop(); err != nil {
			done <- err
			return
		}
		disconnectCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := o.bridge.Disconnect(disconnectCtx); err != nil {
			o.logger.Warn("error disconnecting broker bridge during shutdown", zap.Error(err))
		}

		o.sessionMu.Lock()
		if o.sess.Status != types.SessionStopped {
			o.sess.Status = types.SessionStopped
			if o.sess.EndReason == "" {
				o.sess.EndReason = "Shutdown"
			}
		}
		final := o.sess
		o.sessionMu.Unlock()
		if err := o.sessions.Save(final); err != nil {
			o.logger.Warn("failed to persist final session state", zap.Error(err))
		}
		o.bus.Publish(events.NewSessionStatusEvent(final.Status, final.EndReason))
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(grace + time.Second):
		o.logger.Warn("shutdown grace period exceeded, exiting regardless")
		return nil
	}
}

// --- api.StatusProvider ---

// Session returns the current session snapshot (api.StatusProvider).
func (o *Orchestrator) Session() types.Session {
	o.sessionMu.RLock()
	defer o.sessionMu.RUnlock()
	return o.sess
}

// Positions returns the last-known real positions by symbol
// (api.StatusProvider). This is the short-lived cached view described in
// §3; it is refreshed by the symbol pipeline after every bar.
func (o *Orchestrator) Positions() map[string]types.RealPosition {
	o.positionsMu.RLock()
	defer o.positionsMu.RUnlock()
	out := make(map[string]types.RealPosition, len(o.positions))
	for k, v := range o.positions {
		out[k] = v
	}
	return out
}

// PaperBalances returns the paper trader's current per-symbol balances
// (api.StatusProvider).
func (o *Orchestrator) PaperBalances() map[string]float64 {
	out := make(map[string]float64)
	o.predictorsMu.RLock()
	symbols := make([]string, 0, len(o.predictors))
	for symbol := range o.predictors {
		symbols = append(symbols, symbol)
	}
	o.predictorsMu.RUnlock()
	for _, symbol := range symbols {
		if balance, ok := o.paper.Balance(symbol); ok {
			out[symbol] = balance
		}
	}
	return out
}

// RecentAcks returns up to limit of the most recently recorded executor
// acknowledgements (api.StatusProvider).
func (o *Orchestrator) RecentAcks(limit int) []types.Ack {
	o.acksMu.Lock()
	defer o.acksMu.Unlock()
	if limit <= 0 || limit > len(o.acks) {
		limit = len(o.acks)
	}
	start := len(o.acks) - limit
	out := make([]types.Ack, limit)
	copy(out, o.acks[start:])
	return out
}
