package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSymbolConfigParsesReservedRiskKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.json")
	contents := `{
		"symbols": {
			"EURUSD": {"enabled": true, "lot_mapping": {"1": 0.1, "2": 0.2, "3": 0.3}, "max_spread_pips": 5}
		},
		"_risk": {"drawdown_limit_pct": 5, "drawdown_emergency_pct": 10, "initial_balance": 10000, "max_consecutive_losses": 5}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	file, err := LoadSymbolConfig(path)
	if err != nil {
		t.Fatalf("LoadSymbolConfig: %v", err)
	}
	if file.Risk.InitialBalance != 10000 {
		t.Errorf("risk.initial_balance = %f, want 10000", file.Risk.InitialBalance)
	}

	symbols := Symbols(file)
	cfg, ok := symbols["EURUSD"]
	if !ok {
		t.Fatal("expected EURUSD in symbol map")
	}
	if cfg.LotMap[2] != 0.2 {
		t.Errorf("lot map[2] = %f, want 0.2", cfg.LotMap[2])
	}
}

func TestLoadSymbolConfigRejectsEmptySymbols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.json")
	if err := os.WriteFile(path, []byte(`{"symbols": {}, "_risk": {}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadSymbolConfig(path); err == nil {
		t.Fatal("expected an error for a symbol config with no symbols")
	}
}
