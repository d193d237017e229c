// Package broker adapts a vendor trading SDK's callback/event-loop model
// into a plain async request/response interface (spec §4.7, §9 design
// note: "bridge" component owning a dedicated loop/thread with request
// correlation via one-shot channels).
package broker

import (
	"context"
	"time"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Bridge is the capability contract every broker implementation satisfies
// (§9 "duck-typed connector interface" replaced by a closed set of
// concrete variants: real, mock).
type Bridge interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	GetHistory(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error)
	SubscribeBars(ctx context.Context, symbol string, tf types.Timeframe) (<-chan types.Bar, error)

	GetPositions(ctx context.Context) ([]types.RealPosition, error)
	GetPosition(ctx context.Context, symbol string) (types.RealPosition, bool, error)

	OpenOrder(ctx context.Context, req OrderRequest) (types.OrderResult, error)
	CloseOrder(ctx context.Context, ticket uint64) (types.OrderResult, error)
	ModifyOrder(ctx context.Context, ticket uint64, sl, tp float64) (types.OrderResult, error)

	GetAccount(ctx context.Context) (types.Account, error)
	GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolMetadata, error)
	InvalidateCache(symbol string)
}

// OrderRequest carries everything the bridge needs to place an order.
type OrderRequest struct {
	Symbol    string
	Direction types.Direction
	Volume    float64
	SL, TP    float64
	Comment   string
}

// ConnectionState is the bridge's transport lifecycle state (§4.7
// reconnection).
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "DISCONNECTED"
	}
}

// Default timeouts and rate-limit rates (§4.7).
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultTradingOpsRate = 50 // per second
	DefaultHistoryOpsRate = 5  // per second
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectCap   = 60 * time.Second
	DefaultMetadataTTL    = 10 * time.Minute
	DefaultAuthRefreshWindow = 5 * time.Minute
)
