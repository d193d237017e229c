package types

import "time"

// BrokerType selects the concrete Broker Bridge implementation (§6, §9
// "duck-typed connector interface" -> closed set of concrete variants).
type BrokerType string

const (
	BrokerReal BrokerType = "real"
	BrokerMock BrokerType = "mock"
)

// BrokerEnvironment distinguishes demo vs live broker endpoints.
type BrokerEnvironment string

const (
	EnvironmentDemo BrokerEnvironment = "demo"
	EnvironmentLive BrokerEnvironment = "live"
)

// MainConfig is the process's main KV configuration document (§6).
type MainConfig struct {
	Broker      BrokerConfig      `mapstructure:"broker"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Risk        RiskParams        `mapstructure:"risk"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Health      HealthConfig      `mapstructure:"health"`
}

// BrokerConfig configures the Broker Bridge's target and credentials.
type BrokerConfig struct {
	Type           BrokerType        `mapstructure:"type"`
	Login          string            `mapstructure:"login"`
	Password       string            `mapstructure:"password"`
	Server         string            `mapstructure:"server"`
	Environment    BrokerEnvironment `mapstructure:"environment"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// PathsConfig locates filesystem inputs/outputs.
type PathsConfig struct {
	ModelsDir      string `mapstructure:"models_dir"`
	ExecutorConfig string `mapstructure:"executor_config"`
	LogDir         string `mapstructure:"log_dir"`
}

// TradingConfig configures trading-hours behavior.
type TradingConfig struct {
	Timeframe          Timeframe `mapstructure:"timeframe"`
	InitialBalance     float64   `mapstructure:"initial_balance"`
	CloseOnExit        bool      `mapstructure:"close_on_exit"`
	CloseOnDayChange    bool      `mapstructure:"close_on_day_change"`
	DryRun             bool      `mapstructure:"dry_run"`
}

// PersistenceConfig configures the telemetry egress retry queue.
type PersistenceConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	Token        string `mapstructure:"token"`
	QueueCapacity int    `mapstructure:"queue_capacity"`
}

// LoggingConfig configures zap output.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	File     string `mapstructure:"file"`
	Rotation string `mapstructure:"rotation"`
}

// HealthConfig configures the health monitor / heartbeat cadence.
type HealthConfig struct {
	HeartbeatIntervalS int `mapstructure:"heartbeat_interval_s"`
	SymbolTimeoutS     int `mapstructure:"symbol_timeout_s"`
	MemoryLimitMB      int `mapstructure:"memory_limit_mb"`
}

// SymbolConfigFile is the on-disk shape of the symbol configuration document
// (§6): a symbol -> SymbolConfig map plus a reserved "_risk" entry.
type SymbolConfigFile struct {
	Symbols map[string]SymbolConfigEntry `json:"symbols"`
	Risk    RiskParams                   `json:"_risk"`
}

// SymbolConfigEntry is one symbol's JSON-shaped configuration row.
type SymbolConfigEntry struct {
	Enabled      bool               `json:"enabled"`
	LotMapping   map[string]float64 `json:"lot_mapping"` // keys "1","2","3"
	SLUSD        float64            `json:"sl_usd"`
	TPUSD        float64            `json:"tp_usd"`
	MaxSpreadPips float64            `json:"max_spread_pips"`
}

// ToSymbolConfig converts the JSON entry into the runtime SymbolConfig.
func (e SymbolConfigEntry) ToSymbolConfig(symbol string) SymbolConfig {
	cfg := SymbolConfig{
		Symbol:       symbol,
		Enabled:      e.Enabled,
		SLUSD:        e.SLUSD,
		TPUSD:        e.TPUSD,
		MaxSpreadPips: e.MaxSpreadPips,
	}
	for k, v := range e.LotMapping {
		switch k {
		case "1":
			cfg.LotMap[1] = v
		case "2":
			cfg.LotMap[2] = v
		case "3":
			cfg.LotMap[3] = v
		}
	}
	return cfg
}
