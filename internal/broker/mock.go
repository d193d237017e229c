package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// MockBridge is the in-memory Bridge implementation used by tests and
// dry-run style exercises (§9: "concrete variants: real broker, mock").
// It never suspends and never fails unless explicitly configured to.
type MockBridge struct {
	mu        sync.Mutex
	positions map[string]types.RealPosition
	account   types.Account
	metadata  map[string]types.SymbolMetadata
	barChans  map[string]chan types.Bar
	nextTicket uint64

	// FailOpenOrder, when set, is returned verbatim by OpenOrder instead of
	// succeeding — lets tests exercise the ERROR ACK path.
	FailOpenOrder error
}

// NewMockBridge builds a MockBridge seeded with the given account.
func NewMockBridge(account types.Account) *MockBridge {
	return &MockBridge{
		positions: make(map[string]types.RealPosition),
		account:   account,
		metadata:  make(map[string]types.SymbolMetadata),
		barChans:  make(map[string]chan types.Bar),
	}
}

func (m *MockBridge) Connect(ctx context.Context) error    { return nil }
func (m *MockBridge) Disconnect(ctx context.Context) error { return nil }

func (m *MockBridge) GetHistory(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	return nil, nil
}

func (m *MockBridge) SubscribeBars(ctx context.Context, symbol string, tf types.Timeframe) (<-chan types.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan types.Bar, 16)
	m.barChans[symbol] = ch
	return ch, nil
}

// PushBar lets tests drive a subscribed symbol's bar channel directly.
func (m *MockBridge) PushBar(symbol string, bar types.Bar) {
	m.mu.Lock()
	ch, ok := m.barChans[symbol]
	m.mu.Unlock()
	if ok {
		ch <- bar
	}
}

func (m *MockBridge) GetPositions(ctx context.Context) ([]types.RealPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RealPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockBridge) GetPosition(ctx context.Context, symbol string) (types.RealPosition, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	return p, ok, nil
}

// SetPosition lets tests directly set the broker-authoritative position for
// a symbol (or clear it by passing the zero value with ok=false semantics
// handled via RemovePosition).
func (m *MockBridge) SetPosition(p types.RealPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = p
}

// RemovePosition simulates the broker going flat on symbol (fill, SL/TP,
// or manual close).
func (m *MockBridge) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

func (m *MockBridge) OpenOrder(ctx context.Context, req OrderRequest) (types.OrderResult, error) {
	if m.FailOpenOrder != nil {
		return types.OrderResult{}, m.FailOpenOrder
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTicket++
	ticket := m.nextTicket
	m.positions[req.Symbol] = types.RealPosition{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Volume:    req.Volume,
		SL:        req.SL,
		TP:        req.TP,
		Comment:   req.Comment,
	}
	return types.OrderResult{Success: true, Ticket: ticket}, nil
}

func (m *MockBridge) CloseOrder(ctx context.Context, ticket uint64) (types.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, p := range m.positions {
		if p.Ticket == ticket {
			delete(m.positions, symbol)
			return types.OrderResult{Success: true, Ticket: ticket, ExecutedPrice: p.CurrentPrice}, nil
		}
	}
	return types.OrderResult{}, types.ErrOrderRejected
}

func (m *MockBridge) ModifyOrder(ctx context.Context, ticket uint64, sl, tp float64) (types.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, p := range m.positions {
		if p.Ticket == ticket {
			p.SL, p.TP = sl, tp
			m.positions[symbol] = p
			return types.OrderResult{Success: true, Ticket: ticket}, nil
		}
	}
	return types.OrderResult{}, types.ErrOrderRejected
}

func (m *MockBridge) GetAccount(ctx context.Context) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, nil
}

// SetAccount lets tests drive the simulated account snapshot (e.g. to
// exercise drawdown gates).
func (m *MockBridge) SetAccount(a types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = a
}

func (m *MockBridge) GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta, ok := m.metadata[symbol]; ok {
		return meta, nil
	}
	return types.SymbolMetadata{Symbol: symbol, Point: 0.00001, Digits: 5, PipValuePerLot: 10, VolumeMin: 0.01, VolumeStep: 0.01, VolumeMax: 100}, nil
}

// SetSymbolInfo lets tests override a symbol's broker-reported metadata.
func (m *MockBridge) SetSymbolInfo(meta types.SymbolMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[meta.Symbol] = meta
}

func (m *MockBridge) InvalidateCache(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metadata, symbol)
}

// newCorrelationID mints a correlation id for an outbound request (§4.7
// bridging pattern); the mock bridge resolves synchronously so it has no
// pending-request table, but exposes the same uuid scheme
// Dispatcher.Register uses.
func newCorrelationID() string { return uuid.NewString() }
