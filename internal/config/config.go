// Package config loads the process's main configuration document (§6) via
// viper, with "${ENV_VAR}" placeholders expanded against the process
// environment before the document is parsed or unmarshalled.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Load reads path (any format viper supports: YAML, JSON, TOML) and
// unmarshals it into a MainConfig, expanding "${ENV_VAR}" references in the
// raw file contents first so secrets and per-environment values never need
// to live in the file itself.
func Load(path string) (*types.MainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	v := viper.New()
	v.SetConfigType(configType(path))
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(v)

	var cfg types.MainConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("broker.type", string(types.BrokerReal))
	v.SetDefault("broker.environment", string(types.EnvironmentDemo))
	v.SetDefault("broker.request_timeout", "30s")
	v.SetDefault("trading.timeframe", int64(types.Timeframe15Min))
	v.SetDefault("persistence.queue_capacity", 1000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("health.heartbeat_interval_s", 30)
	v.SetDefault("health.symbol_timeout_s", 300)
}

// Validate checks the fields required for the process to start trading
// (§6, §7 fatal-at-startup error kind).
func Validate(cfg *types.MainConfig) error {
	if cfg.Broker.Login == "" {
		return fmt.Errorf("broker.login is required")
	}
	if cfg.Broker.Server == "" {
		return fmt.Errorf("broker.server is required")
	}
	if cfg.Paths.ModelsDir == "" {
		return fmt.Errorf("paths.models_dir is required")
	}
	if cfg.Paths.ExecutorConfig == "" {
		return fmt.Errorf("paths.executor_config is required")
	}
	switch cfg.Broker.Type {
	case types.BrokerReal, types.BrokerMock:
	default:
		return fmt.Errorf("broker.type must be %q or %q", types.BrokerReal, types.BrokerMock)
	}
	if cfg.Persistence.Enabled && cfg.Persistence.Endpoint == "" {
		return fmt.Errorf("persistence.endpoint is required when persistence.enabled is true")
	}
	return nil
}

func configType(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			ext := path[i+1:]
			switch ext {
			case "yaml", "yml", "json", "toml":
				return ext
			}
		}
	}
	return "yaml"
}
