package orchestrator

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/broker"
	"github.com/riverline-quant/predictor-core/internal/events"
	"github.com/riverline-quant/predictor-core/internal/execution"
	"github.com/riverline-quant/predictor-core/internal/modelbundle"
	"github.com/riverline-quant/predictor-core/internal/papertrader"
	"github.com/riverline-quant/predictor-core/internal/session"
	"github.com/riverline-quant/predictor-core/internal/telemetry"
	"github.com/riverline-quant/predictor-core/internal/workers"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// testMetadata builds a minimal but Validate-passing archive metadata
// record, mirroring modelbundle's own test fixture (§4.5).
func testMetadata(symbol string) modelbundle.Metadata {
	return modelbundle.Metadata{
		FormatVersion:    "2.0",
		SymbolDescriptor: symbol,
		Costs: modelbundle.CostParams{
			Point: 0.00001, PipValue: 10, SpreadPoints: 10, SlippagePoints: 2,
			CommissionPerLot: 3.5, Digits: 5, InitialBalance: 10000,
			LotSizes: map[string]float64{"1": 0.01, "2": 0.02, "3": 0.05},
		},
		HMM: modelbundle.HMMConfig{NumStates: 3, MomentumPeriod: 20, ConsistencyPeriod: 20, RangePeriod: 20},
		RL:  modelbundle.RLConfig{ROCPeriod: 10, ATRPeriod: 14, EMAPeriod: 20, RangePeriod: 20, VolumeMAPeriod: 20},
		ActionTable: [7]modelbundle.ActionTableRow{
			{Name: "WAIT", Direction: 0, Intensity: 0},
			{Name: "LONG_WEAK", Direction: 1, Intensity: 1},
			{Name: "LONG_MODERATE", Direction: 1, Intensity: 2},
			{Name: "LONG_STRONG", Direction: 1, Intensity: 3},
			{Name: "SHORT_WEAK", Direction: -1, Intensity: 1},
			{Name: "SHORT_MODERATE", Direction: -1, Intensity: 2},
			{Name: "SHORT_STRONG", Direction: -1, Intensity: 3},
		},
	}
}

// writeBundleArchive writes a minimal valid model archive to path, matching
// the container shape modelbundle.Loader expects (§4.5).
func writeBundleArchive(t *testing.T, path, symbol string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, entry := range []string{"hmm.bin", "policy.bin"} {
		ew, err := w.Create(entry)
		if err != nil {
			t.Fatalf("create entry %s: %v", entry, err)
		}
		if _, err := ew.Write([]byte("weights")); err != nil {
			t.Fatalf("write entry %s: %v", entry, err)
		}
	}
	meta := testMetadata(symbol)
	b, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	if err := w.SetComment(string(b)); err != nil {
		t.Fatalf("set comment: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
}

type stubEngine struct{}

func (stubEngine) HMMPredict(features [3]float64) (int, error)      { return 0, nil }
func (stubEngine) PolicyPredict(f []float64, det bool) (int, error) { return 0, nil }

func stubFactory(hmmBlob, policyBlob []byte) (modelbundle.InferenceEngine, error) {
	return stubEngine{}, nil
}

// testHarness wires a complete Orchestrator against in-memory/mock
// collaborators, mirroring the way cmd/trader/main.go wires the real ones.
type testHarness struct {
	orch   *Orchestrator
	bridge *broker.MockBridge
	pool   *workers.Pool
	bus    *events.Bus
	queue  *telemetry.RetryQueue
}

type noopSink struct{}

func (noopSink) Persist(ctx context.Context, evs []telemetry.Event) error { return nil }

func newHarness(t *testing.T, symbols []string) *testHarness {
	t.Helper()
	dir := t.TempDir()
	for _, symbol := range symbols {
		writeBundleArchive(t, dir+"/"+symbol+".zip", symbol)
	}

	logger := zap.NewNop()
	bundles := modelbundle.NewManager(dir, modelbundle.NewLoader(stubFactory), logger)
	if err := bundles.LoadAll(symbols); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	bridge := broker.NewMockBridge(types.Account{Balance: 10000, Equity: 10000, FreeMargin: 10000})
	risk := execution.NewRiskGuard(execution.DefaultRiskGuardConfig())
	paper := papertrader.NewTrader()
	sessions := session.NewStore(t.TempDir(), logger)
	bus := events.New(logger, events.DefaultConfig())
	queue := telemetry.NewRetryQueue(noopSink{}, 100, logger)
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("test-pipeline", len(symbols)))

	symbolCfgs := make(map[string]types.SymbolConfig, len(symbols))
	for _, symbol := range symbols {
		symbolCfgs[symbol] = types.SymbolConfig{Symbol: symbol, Enabled: true, LotMap: [4]float64{0, 0.1, 0.2, 0.3}, MaxSpreadPips: 5}
	}

	orch := New(logger, DefaultConfig(), Deps{
		Bridge:     bridge,
		Bundles:    bundles,
		Risk:       risk,
		Paper:      paper,
		Sessions:   sessions,
		Bus:        bus,
		Queue:      queue,
		Pool:       pool,
		SymbolCfgs: symbolCfgs,
		RiskParams: types.RiskParams{InitialBalance: 10000},
	})

	exec := execution.NewExecutor(bridge, risk, execution.NewPriceConverter(), symbolCfgs, orch.SpreadLookup(), execution.ExecutorConfig{}, logger)
	orch.AttachExecutor(exec)

	return &testHarness{orch: orch, bridge: bridge, pool: pool, bus: bus, queue: queue}
}

func TestRunRefusesWithoutAttachedExecutor(t *testing.T) {
	logger := zap.NewNop()
	orch := New(logger, DefaultConfig(), Deps{
		Bridge:     broker.NewMockBridge(types.Account{}),
		Bundles:    modelbundle.NewManager(t.TempDir(), modelbundle.NewLoader(stubFactory), logger),
		Risk:       execution.NewRiskGuard(execution.DefaultRiskGuardConfig()),
		Paper:      papertrader.NewTrader(),
		Sessions:   session.NewStore(t.TempDir(), logger),
		Bus:        events.New(logger, events.DefaultConfig()),
		Queue:      telemetry.NewRetryQueue(noopSink{}, 10, logger),
		Pool:       workers.NewPool(logger, workers.DefaultPoolConfig("test", 1)),
		SymbolCfgs: map[string]types.SymbolConfig{},
		RiskParams: types.RiskParams{},
	})

	if err := orch.Run(context.Background(), []string{"EURUSD"}); err == nil {
		t.Fatal("expected error when Run is called before AttachExecutor")
	}
}

func TestWarmupAllPopulatesPredictorsAndPaperAccounts(t *testing.T) {
	h := newHarness(t, []string{"EURUSD", "GBPUSD"})
	if err := h.orch.warmupAll(context.Background(), []string{"EURUSD", "GBPUSD"}); err != nil {
		t.Fatalf("warmupAll: %v", err)
	}

	h.orch.predictorsMu.RLock()
	_, hasEUR := h.orch.predictors["EURUSD"]
	_, hasGBP := h.orch.predictors["GBPUSD"]
	h.orch.predictorsMu.RUnlock()
	if !hasEUR || !hasGBP {
		t.Fatalf("expected both symbols warmed up, got EURUSD=%v GBPUSD=%v", hasEUR, hasGBP)
	}

	balances := h.orch.PaperBalances()
	if _, ok := balances["EURUSD"]; !ok {
		t.Error("expected paper balance for EURUSD after warmup seeding")
	}
}

func TestWarmupAllSkipsUnmodeledSymbol(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	if err := h.orch.warmupAll(context.Background(), []string{"EURUSD", "USDJPY"}); err != nil {
		t.Fatalf("warmupAll: %v", err)
	}
	h.orch.predictorsMu.RLock()
	_, hasJPY := h.orch.predictors["USDJPY"]
	h.orch.predictorsMu.RUnlock()
	if hasJPY {
		t.Error("did not expect a predictor for a symbol with no loaded bundle")
	}
}

func TestSpreadInPipsAppliesDigitMultiplier(t *testing.T) {
	cases := []struct {
		digits int
		points float64
		point  float64
		want   float64
	}{
		{digits: 5, points: 10, point: 0.00001, want: 0.001},
		{digits: 3, points: 10, point: 0.001, want: 0.1},
		{digits: 2, points: 10, point: 0.01, want: 0.1},
	}
	for _, c := range cases {
		got := spreadInPips(types.SymbolMetadata{Digits: c.digits, SpreadPoints: c.points, Point: c.point})
		if got != c.want {
			t.Errorf("digits=%d: spreadInPips = %v, want %v", c.digits, got, c.want)
		}
	}
}

func TestSpreadLookupReflectsRefreshedSpread(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	h.bridge.SetSymbolInfo(types.SymbolMetadata{Symbol: "EURUSD", Digits: 5, Point: 0.00001, SpreadPoints: 15})

	h.orch.spreadMu.Lock()
	h.orch.spread["EURUSD"] = 0.0015
	h.orch.spreadMu.Unlock()

	lookup := h.orch.SpreadLookup()
	pips, ok := lookup("EURUSD")
	if !ok || pips != 0.0015 {
		t.Fatalf("SpreadLookup(EURUSD) = %v, %v; want 0.0015, true", pips, ok)
	}
	if _, ok := lookup("USDJPY"); ok {
		t.Error("expected no spread entry for a symbol never refreshed")
	}
}

func TestTriggerEmergencyStopFlattensAndStopsSessionOnce(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	h.orch.sess = types.Session{ID: "sess_test", Status: types.SessionRunning}
	h.bridge.SetPosition(types.RealPosition{Ticket: 1, Symbol: "EURUSD", Direction: types.DirectionLong, Volume: 0.1})

	ctx := context.Background()
	h.orch.triggerEmergencyStop(ctx, "EURUSD", "emergency drawdown breached")
	h.orch.triggerEmergencyStop(ctx, "EURUSD", "emergency drawdown breached")

	if got := h.orch.Session().Status; got != types.SessionStopped {
		t.Fatalf("session status = %v, want SessionStopped", got)
	}
	if got := h.orch.Session().EndReason; got != "Emergency" {
		t.Fatalf("end reason = %q, want %q", got, "Emergency")
	}
	positions, _ := h.bridge.GetPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("expected flattenAll to close the open position, got %d remaining", len(positions))
	}

	select {
	case <-h.orch.flattening:
	default:
		t.Error("expected flattening channel to be closed after emergency stop")
	}
}

func TestRecordAckCapsRetainedHistory(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	for i := 0; i < 600; i++ {
		h.orch.recordAck(types.Ack{Status: types.AckOK, Reason: "SYNCED"})
	}
	got := h.orch.RecentAcks(0)
	if len(got) != 500 {
		t.Fatalf("retained ack count = %d, want 500", len(got))
	}
}

func TestRecentAcksRespectsLimit(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	for i := 0; i < 10; i++ {
		h.orch.recordAck(types.Ack{Status: types.AckOK, Reason: "SYNCED"})
	}
	if got := h.orch.RecentAcks(3); len(got) != 3 {
		t.Fatalf("RecentAcks(3) returned %d acks, want 3", len(got))
	}
	if got := h.orch.RecentAcks(1000); len(got) != 10 {
		t.Fatalf("RecentAcks(1000) returned %d acks, want 10", len(got))
	}
}

func TestPositionsReturnsDefensiveCopy(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	h.orch.positionsMu.Lock()
	h.orch.positions["EURUSD"] = types.RealPosition{Symbol: "EURUSD", Ticket: 7}
	h.orch.positionsMu.Unlock()

	snapshot := h.orch.Positions()
	snapshot["EURUSD"] = types.RealPosition{Symbol: "EURUSD", Ticket: 999}

	h.orch.positionsMu.RLock()
	got := h.orch.positions["EURUSD"].Ticket
	h.orch.positionsMu.RUnlock()
	if got != 7 {
		t.Errorf("mutating the returned map leaked into internal state: ticket = %d, want 7", got)
	}
}

func TestRecoverOrMintSessionMintsFreshWhenNoPriorSession(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	sess := h.orch.recoverOrMintSession(nil, []string{"EURUSD"})
	if sess.Status != types.SessionRunning {
		t.Errorf("status = %v, want SessionRunning", sess.Status)
	}
	if sess.ID == "" {
		t.Error("expected a minted session id")
	}
}

func TestRecoverOrMintSessionRecoversCrashedSession(t *testing.T) {
	h := newHarness(t, []string{"EURUSD"})
	prior := &types.Session{ID: "sess_prior", Status: types.SessionRunning, LastHeartbeat: time.Now().Add(-time.Hour)}
	sess := h.orch.recoverOrMintSession(prior, []string{"EURUSD"})
	if sess.ID != "sess_prior" {
		t.Errorf("recovered session id = %q, want %q", sess.ID, "sess_prior")
	}
}
