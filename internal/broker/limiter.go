package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiters bundles the two leaky buckets the bridge enforces in its
// request path (§4.7): trading operations and history operations. acquire
// suspends the caller until a token is available — rate limiting is never a
// silent drop (§5).
type RateLimiters struct {
	trading *rate.Limiter
	history *rate.Limiter
}

// NewRateLimiters builds limiters at the given per-second rates, each with
// a burst of one (a leaky bucket, not a bursty token bucket).
func NewRateLimiters(tradingPerSecond, historyPerSecond float64) *RateLimiters {
	return &RateLimiters{
		trading: rate.NewLimiter(rate.Limit(tradingPerSecond), 1),
		history: rate.NewLimiter(rate.Limit(historyPerSecond), 1),
	}
}

// AcquireTrading suspends until a trading-ops token is available or ctx is
// cancelled.
func (l *RateLimiters) AcquireTrading(ctx context.Context) error {
	return l.trading.Wait(ctx)
}

// AcquireHistory suspends until a history-ops token is available or ctx is
// cancelled.
func (l *RateLimiters) AcquireHistory(ctx context.Context) error {
	return l.history.Wait(ctx)
}
