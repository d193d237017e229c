// Package types provides the shared data model for the trading execution core.
package types

import "errors"

// Sentinel errors forming the error taxonomy of §7. Components wrap these
// with fmt.Errorf("...: %w", Err...) so callers can still errors.Is/As them
// after context is added.
var (
	ErrConfigInvalid        = errors.New("config invalid")
	ErrConnectionLost       = errors.New("connection lost")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRequestTimeout       = errors.New("request timeout")
	ErrRateLimited          = errors.New("rate limited")
	ErrOrderRejected        = errors.New("order rejected")
	ErrEmergency            = errors.New("emergency drawdown breached")
	ErrDrawdownLimit        = errors.New("drawdown limit breached")
	ErrInsufficientMargin   = errors.New("insufficient margin")
	ErrSpreadExceeded       = errors.New("spread exceeded")
	ErrSpreadUnknown        = errors.New("spread unknown")
	ErrCircuitBreakerOpen   = errors.New("circuit breaker open")
	ErrOutOfOrderBar        = errors.New("out of order bar")
	ErrModelLoadFailed      = errors.New("model load failed")
	ErrUnknownPipValue      = errors.New("unknown pip value")
)

// AckStatus is the outcome category of an Executor acknowledgement (§4.11, §7).
type AckStatus string

const (
	AckOK      AckStatus = "OK"
	AckSkip    AckStatus = "SKIP"
	AckError   AckStatus = "ERROR"
	AckWaiting AckStatus = "WAITING_SYNC"
)

// Ack is the single, total acknowledgement every Signal consumed by the
// Executor produces (§8 Testable Property 6). Reason is empty for AckOK.
type Ack struct {
	Symbol    string
	Status    AckStatus
	Reason    string
	Ticket    uint64
	FillPrice float64
}
