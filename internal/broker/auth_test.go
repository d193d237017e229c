package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func TestAuthManagerRefreshesWhenEmpty(t *testing.T) {
	calls := 0
	refresher := func(ctx context.Context, login, password, server string) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(time.Hour), nil
	}
	a := NewAuthManager(refresher, "u", "p", "s", 5*time.Minute)

	token, err := a.Token(context.Background())
	if err != nil || token != "tok" {
		t.Fatalf("got (%q, %v), want (tok, nil)", token, err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", calls)
	}
}

func TestAuthManagerRefreshesProactivelyNearExpiry(t *testing.T) {
	calls := 0
	refresher := func(ctx context.Context, login, password, server string) (string, time.Time, error) {
		calls++
		// Each refresh expires almost immediately, forcing the next call to refresh again.
		return "tok", time.Now().Add(4 * time.Minute), nil
	}
	a := NewAuthManager(refresher, "u", "p", "s", 5*time.Minute)

	a.Token(context.Background())
	a.Token(context.Background())
	if calls != 2 {
		t.Fatalf("expected refresh on every call within the 5min window, got %d calls", calls)
	}
}

func TestAuthManagerDoesNotRefreshWhenFresh(t *testing.T) {
	calls := 0
	refresher := func(ctx context.Context, login, password, server string) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(time.Hour), nil
	}
	a := NewAuthManager(refresher, "u", "p", "s", 5*time.Minute)

	a.Token(context.Background())
	a.Token(context.Background())
	if calls != 1 {
		t.Fatalf("expected no second refresh while token is fresh, got %d calls", calls)
	}
}

func TestAuthManagerSurfacesAuthenticationFailed(t *testing.T) {
	refresher := func(ctx context.Context, login, password, server string) (string, time.Time, error) {
		return "", time.Time{}, errors.New("denied")
	}
	a := NewAuthManager(refresher, "u", "p", "s", 5*time.Minute)

	_, err := a.Token(context.Background())
	if !errors.Is(err, types.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}
