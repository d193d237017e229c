// Package utils collects small cross-cutting helpers shared by the broker
// bridge, executor, and orchestrator: identifier minting, decimal-precise
// volume/price rounding, human-readable money formatting for logs, and a
// generic retry helper for flaky external calls.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateID generates a unique identifier with an optional prefix, used
// wherever a timestamp alone risks colliding (e.g. two session starts within
// the same second after a rapid restart).
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	id := hex.EncodeToString(b)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id)
	}
	return id
}

// RoundToStepSize rounds qty down to the nearest multiple of step using
// exact decimal arithmetic, avoiding the float64 drift that a plain
// math.Floor(qty/step)*step would introduce at broker-reported precisions
// (§4.11 order volume must respect the broker's lot step).
func RoundToStepSize(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	rounded, _ := q.Div(s).Floor().Mul(s).Float64()
	return rounded
}

// ClampVolume rounds volume to the symbol's lot step and clamps it into
// [min, max], matching the broker's own acceptance rule so OpenOrder never
// rejects a request purely for a precision or bounds mismatch.
func ClampVolume(volume, min, step, max float64) float64 {
	v := RoundToStepSize(volume, step)
	if min > 0 && v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

// FormatMoney renders a balance with two decimal places and a currency
// sign (USD, GBP, EUR; any other code is appended), used in human-facing
// log lines (orchestrator paper-drift logging).
func FormatMoney(amount float64, currency string) string {
	d := decimal.NewFromFloat(amount)
	switch strings.ToUpper(currency) {
	case "", "USD":
		return "$" + d.StringFixed(2)
	case "GBP":
		return "£" + d.StringFixed(2)
	case "EUR":
		return "€" + d.StringFixed(2)
	default:
		return d.StringFixed(2) + " " + currency
	}
}

// RetryConfig configures Retry's exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns a conservative default: 3 attempts, 100ms
// initial delay, doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry calls fn until it succeeds or config.MaxAttempts is exhausted,
// sleeping with exponential backoff between attempts. Used by the broker
// bridge's auth refresh, where a single transient failure should not cost
// the whole bar-processing pipeline a reconnect cycle.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == config.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}
