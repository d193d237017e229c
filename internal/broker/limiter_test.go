package broker

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitersSuspendUntilTokenAvailable(t *testing.T) {
	l := NewRateLimiters(5, 5) // 5/s, so a second token is ~200ms out
	ctx := context.Background()

	if err := l.AcquireTrading(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if err := l.AcquireTrading(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected second acquire to suspend for a token, only waited %v", elapsed)
	}
}

func TestRateLimitersRespectCancellation(t *testing.T) {
	l := NewRateLimiters(1, 1)
	_ = l.AcquireTrading(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.AcquireTrading(ctx); err == nil {
		t.Fatal("expected context deadline to cancel the wait")
	}
}
