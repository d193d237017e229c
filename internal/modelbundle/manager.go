package modelbundle

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the loaded bundle for every enabled symbol, keyed by symbol
// name. It is read-heavy after startup (§4.5/§4.7: bundles load once at
// bootstrap, before any broker connection is established) so RLock covers
// the common path.
type Manager struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
	loader  *Loader
	dir     string
	log     *zap.Logger
}

// NewManager builds a Manager that loads archives named "<symbol>.zip" out
// of modelsDir.
func NewManager(modelsDir string, loader *Loader, log *zap.Logger) *Manager {
	return &Manager{
		bundles: make(map[string]*Bundle),
		loader:  loader,
		dir:     modelsDir,
		log:     log,
	}
}

// LoadAll loads one archive per symbol in symbols, failing on the first
// error — a missing or corrupt archive for an enabled symbol is a bootstrap
// fault, not a degraded-mode condition (§4.5).
func (m *Manager) LoadAll(symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, symbol := range symbols {
		path := filepath.Join(m.dir, symbol+".zip")
		bundle, err := m.loader.Load(path, symbol)
		if err != nil {
			return fmt.Errorf("modelbundle: loading %s: %w", symbol, err)
		}
		m.bundles[symbol] = bundle
		m.log.Info("model bundle loaded",
			zap.String("symbol", symbol),
			zap.String("format_version", bundle.Metadata.FormatVersion),
			zap.Int("hmm_states", bundle.Metadata.HMM.NumStates),
		)
	}
	return nil
}

// Get returns the loaded bundle for symbol, or false if none was loaded.
func (m *Manager) Get(symbol string) (*Bundle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[symbol]
	return b, ok
}
