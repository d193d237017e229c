package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// LoadSymbolConfig reads the JSON symbol configuration document (§6): a
// per-symbol map plus the reserved "_risk" entry.
func LoadSymbolConfig(path string) (*types.SymbolConfigFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbol config %s: %w", path, err)
	}

	var file types.SymbolConfigFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse symbol config %s: %w", path, err)
	}
	if len(file.Symbols) == 0 {
		return nil, fmt.Errorf("symbol config %s declares no symbols", path)
	}
	return &file, nil
}

// Symbols converts file's entries into the runtime SymbolConfig map keyed
// by symbol, ready for the Executor.
func Symbols(file *types.SymbolConfigFile) map[string]types.SymbolConfig {
	out := make(map[string]types.SymbolConfig, len(file.Symbols))
	for symbol, entry := range file.Symbols {
		out[symbol] = entry.ToSymbolConfig(symbol)
	}
	return out
}
