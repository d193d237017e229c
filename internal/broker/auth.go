package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riverline-quant/predictor-core/pkg/types"
	"github.com/riverline-quant/predictor-core/pkg/utils"
)

// TokenRefresher performs the vendor-specific OAuth-style token exchange.
// Concrete HTTP bridges supply one; tests supply a stub.
type TokenRefresher func(ctx context.Context, login, password, server string) (token string, expiresAt time.Time, err error)

// AuthManager holds the current session token and refreshes it proactively
// before it expires (§4.7 authentication: "treats any token expiring in <
// 5 minutes as expired and refreshes proactively").
type AuthManager struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refresh   TokenRefresher
	login, password, server string
	window    time.Duration
}

// NewAuthManager builds an AuthManager bound to the given refresher and
// credentials.
func NewAuthManager(refresh TokenRefresher, login, password, server string, window time.Duration) *AuthManager {
	if window <= 0 {
		window = DefaultAuthRefreshWindow
	}
	return &AuthManager{refresh: refresh, login: login, password: password, server: server, window: window}
}

// Token returns a valid token, refreshing first if the cached one expires
// within the refresh window or has never been fetched.
func (a *AuthManager) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Until(a.expiresAt) > a.window {
		return a.token, nil
	}

	type refreshResult struct {
		token     string
		expiresAt time.Time
	}
	result, err := utils.Retry(utils.DefaultRetryConfig(), func() (refreshResult, error) {
		token, expiresAt, err := a.refresh(ctx, a.login, a.password, a.server)
		return refreshResult{token: token, expiresAt: expiresAt}, err
	})
	if err != nil {
		return "", fmt.Errorf("auth refresh failed: %w: %w", err, types.ErrAuthenticationFailed)
	}
	a.token = result.token
	a.expiresAt = result.expiresAt
	return a.token, nil
}

// Invalidate forces the next Token call to refresh regardless of expiry.
func (a *AuthManager) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
}
