// Command trader is the entry point for the trading execution core: it
// loads configuration, bootstraps every component described in the spec,
// and runs until an interrupt/terminate signal or a fatal error (§6 CLI
// surface).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/riverline-quant/predictor-core/internal/api"
	"github.com/riverline-quant/predictor-core/internal/broker"
	"github.com/riverline-quant/predictor-core/internal/config"
	"github.com/riverline-quant/predictor-core/internal/events"
	"github.com/riverline-quant/predictor-core/internal/execution"
	"github.com/riverline-quant/predictor-core/internal/modelbundle"
	"github.com/riverline-quant/predictor-core/internal/orchestrator"
	"github.com/riverline-quant/predictor-core/internal/papertrader"
	"github.com/riverline-quant/predictor-core/internal/session"
	"github.com/riverline-quant/predictor-core/internal/telemetry"
	"github.com/riverline-quant/predictor-core/internal/workers"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Exit codes per §6: 0 clean shutdown, 1 fatal init error, 2 invalid
// configuration, 130 interrupt.
const (
	exitOK            = 0
	exitFatalInit     = 1
	exitInvalidConfig = 2
	exitInterrupt     = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "config.yaml", "path to the main configuration document")
	logLevel := pflag.String("log-level", "info", "log level (debug|info|warn|error)")
	dryRun := pflag.Bool("dry-run", false, "evaluate risk gates but never send orders")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader: loading config: %v\n", err)
		return exitInvalidConfig
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "trader: invalid config: %v\n", err)
		return exitInvalidConfig
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}

	level := cfg.Logging.Level
	if pflag.Lookup("log-level").Changed {
		level = *logLevel
	}
	logger := setupLogger(level)
	defer logger.Sync()

	logger.Info("starting trading execution core",
		zap.String("config", *configPath),
		zap.Bool("dry_run", cfg.Trading.DryRun),
	)

	symbolFile, err := config.LoadSymbolConfig(cfg.Paths.ExecutorConfig)
	if err != nil {
		logger.Error("failed to load symbol configuration", zap.Error(err))
		return exitInvalidConfig
	}
	symbolCfgs := config.Symbols(symbolFile)
	symbols := make([]string, 0, len(symbolCfgs))
	for symbol, sc := range symbolCfgs {
		if sc.Enabled {
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		logger.Error("no enabled symbols in symbol configuration")
		return exitInvalidConfig
	}

	bridge, err := buildBridge(cfg, logger)
	if err != nil {
		logger.Error("failed to build broker bridge", zap.Error(err))
		return exitFatalInit
	}

	bundles := modelbundle.NewManager(cfg.Paths.ModelsDir, modelbundle.NewLoader(productionEngineFactory), logger)
	if err := bundles.LoadAll(symbols); err != nil {
		logger.Error("failed to load model bundles", zap.Error(err))
		return exitFatalInit
	}

	riskGuard := execution.NewRiskGuard(riskGuardConfigFrom(symbolFile.Risk))
	converter := execution.NewPriceConverter()
	bus := events.New(logger, events.DefaultConfig())

	var sink telemetry.Sink
	if cfg.Persistence.Enabled {
		sink = telemetry.NewHTTPSink(cfg.Persistence.Endpoint, cfg.Persistence.Token)
	} else {
		sink = noopSink{}
	}
	queueCapacity := cfg.Persistence.QueueCapacity
	queue := telemetry.NewRetryQueue(sink, queueCapacity, logger)

	sessionDir := cfg.Paths.LogDir
	if sessionDir == "" {
		sessionDir = "."
	}
	sessionStore := session.NewStore(sessionDir, logger)
	paperTrader := papertrader.NewTrader()

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("symbol-pipeline", len(symbols)))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Timeframe = cfg.Trading.Timeframe
	orchCfg.CloseOnExit = cfg.Trading.CloseOnExit
	orchCfg.CloseOnDayChange = cfg.Trading.CloseOnDayChange
	if cfg.Health.HeartbeatIntervalS > 0 {
		orchCfg.HeartbeatPeriod = time.Duration(cfg.Health.HeartbeatIntervalS) * time.Second
	}
	if cfg.Health.SymbolTimeoutS > 0 {
		orchCfg.SymbolTimeout = time.Duration(cfg.Health.SymbolTimeoutS) * time.Second
	}

	orch := orchestrator.New(logger, orchCfg, orchestrator.Deps{
		Bridge:     bridge,
		Bundles:    bundles,
		Risk:       riskGuard,
		Paper:      paperTrader,
		Sessions:   sessionStore,
		Bus:        bus,
		Queue:      queue,
		Pool:       pool,
		SymbolCfgs: symbolCfgs,
		RiskParams: symbolFile.Risk,
	})

	executor := execution.NewExecutor(bridge, riskGuard, converter, symbolCfgs, orch.SpreadLookup(), execution.ExecutorConfig{
		DryRun: cfg.Trading.DryRun,
	}, logger)
	orch.AttachExecutor(executor)

	apiServer := api.NewServer(logger, api.DefaultConfig(), orch, bus)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server exited with error", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx, symbols) }()

	interrupted := false
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		interrupted = true
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			logger.Error("orchestrator exited with error", zap.Error(err))
			shutdownAPI(apiServer, logger)
			return exitFatalInit
		}
	}

	shutdownAPI(apiServer, logger)

	logger.Info("trading execution core stopped")
	if interrupted {
		return exitInterrupt
	}
	return exitOK
}

func shutdownAPI(s *api.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping api server", zap.Error(err))
	}
}

// buildBridge selects the real or mock Broker Bridge per the configured
// broker.type (§6, §9 closed set of connector variants).
func buildBridge(cfg *types.MainConfig, logger *zap.Logger) (broker.Bridge, error) {
	switch cfg.Broker.Type {
	case types.BrokerMock:
		return broker.NewMockBridge(types.Account{
			Balance: cfg.Trading.InitialBalance,
			Equity:  cfg.Trading.InitialBalance,
		}), nil
	case types.BrokerReal:
		return broker.NewHTTPBridge(broker.HTTPBridgeConfig{
			BaseURL:        brokerBaseURL(cfg.Broker.Environment),
			WSURL:          brokerWSURL(cfg.Broker.Environment),
			Login:          cfg.Broker.Login,
			Password:       cfg.Broker.Password,
			Server:         cfg.Broker.Server,
			RequestTimeout: cfg.Broker.RequestTimeout,
			Refresh:        tokenRefresher,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported broker.type %q", cfg.Broker.Type)
	}
}

func brokerBaseURL(env types.BrokerEnvironment) string {
	if env == types.EnvironmentLive {
		return "https://live.broker.internal"
	}
	return "https://demo.broker.internal"
}

func brokerWSURL(env types.BrokerEnvironment) string {
	if env == types.EnvironmentLive {
		return "wss://live.broker.internal/stream"
	}
	return "wss://demo.broker.internal/stream"
}

// tokenRefresher is the AuthManager's credential exchange callback; the
// concrete OAuth handshake lives with the broker's vendor SDK, out of this
// spec's scope (§1 non-goals).
func tokenRefresher(ctx context.Context, login, password, server string) (string, time.Time, error) {
	return "", time.Time{}, fmt.Errorf("token refresh not wired: supply a real broker credential exchange")
}

// productionEngineFactory builds the inference engine bound to an archive's
// two opaque blobs. Re-implementing HMM/policy inference is out of scope
// (§1); production builds link the vendor-supplied inference runtime here.
func productionEngineFactory(hmmBlob, policyBlob []byte) (modelbundle.InferenceEngine, error) {
	return nil, fmt.Errorf("%w: no inference runtime linked into this build", types.ErrModelLoadFailed)
}

func riskGuardConfigFrom(p types.RiskParams) execution.RiskGuardConfig {
	cfg := execution.DefaultRiskGuardConfig()
	if p.DrawdownLimitPct > 0 {
		cfg.DrawdownLimitPct = p.DrawdownLimitPct
	}
	if p.DrawdownEmergencyPct > 0 {
		cfg.DrawdownEmergencyPct = p.DrawdownEmergencyPct
	}
	cfg.InitialBalance = p.InitialBalance
	if p.MaxConsecutiveLosses > 0 {
		cfg.MaxConsecutiveLosses = p.MaxConsecutiveLosses
	}
	return cfg
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// noopSink discards telemetry events; used when persistence.enabled is
// false so the RetryQueue still runs but never calls out (§6).
type noopSink struct{}

func (noopSink) Persist(ctx context.Context, events []telemetry.Event) error { return nil }
