package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BROKER_LOGIN", "env-login-123")
	path := writeConfigFile(t, `
broker:
  login: "${TEST_BROKER_LOGIN}"
  server: "demo.broker.example"
paths:
  models_dir: "/tmp/models"
  executor_config: "/tmp/symbols.json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.Login != "env-login-123" {
		t.Errorf("login = %q, want expanded env var", cfg.Broker.Login)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
broker:
  login: "x"
  server: "y"
paths:
  models_dir: "/tmp/models"
  executor_config: "/tmp/symbols.json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Persistence.QueueCapacity != 1000 {
		t.Errorf("queue_capacity = %d, want default 1000", cfg.Persistence.QueueCapacity)
	}
	if cfg.Health.SymbolTimeoutS != 300 {
		t.Errorf("symbol_timeout_s = %d, want default 300", cfg.Health.SymbolTimeoutS)
	}
}

func TestValidateRequiresBrokerLogin(t *testing.T) {
	cfg := &types.MainConfig{}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a config missing broker.login")
	}
}

func TestValidateRejectsUnknownBrokerType(t *testing.T) {
	cfg := &types.MainConfig{
		Broker: types.BrokerConfig{Login: "x", Server: "y", Type: "fake"},
		Paths:  types.PathsConfig{ModelsDir: "/tmp", ExecutorConfig: "/tmp/s.json"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown broker type")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &types.MainConfig{
		Broker: types.BrokerConfig{Login: "x", Server: "y", Type: types.BrokerMock},
		Paths:  types.PathsConfig{ModelsDir: "/tmp", ExecutorConfig: "/tmp/s.json"},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
