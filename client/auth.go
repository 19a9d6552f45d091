package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/apikit/kv"
)

// RefreshFunc obtains a new bearer token, typically by exchanging a
// refresh token with the auth server.
type RefreshFunc func(ctx context.Context) (string, error)

// TokenSource stores the bearer token and refreshes it on demand. JWT
// tokens are refreshed proactively when their exp claim is inside the
// leeway window; opaque tokens are refreshed only on 401s. Concurrent
// refreshes collapse into one call.
type TokenSource struct {
	store   kv.Store
	key     string
	refresh RefreshFunc
	leeway  time.Duration
	now     func() time.Time

	mu         sync.Mutex
	refreshing bool
	done       chan struct{}
	lastErr    error
}

// TokenSourceConfig configures a TokenSource.
type TokenSourceConfig struct {
	// Store persists the token. Defaults to an in-memory store.
	Store kv.Store
	// Key is the storage key. Defaults to "auth_token".
	Key string
	// Refresh obtains a new token. Required.
	Refresh RefreshFunc
	// Leeway triggers proactive refresh this long before JWT expiry.
	// Defaults to 30s.
	Leeway time.Duration
	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewTokenSource creates a token source.
func NewTokenSource(cfg TokenSourceConfig) (*TokenSource, error) {
	if cfg.Refresh == nil {
		return nil, fmt.Errorf("token source: refresh func is required")
	}
	if cfg.Store == nil {
		cfg.Store = kv.NewMemory()
	}
	if cfg.Key == "" {
		cfg.Key = "auth_token"
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenSource{
		store:   cfg.Store,
		key:     cfg.Key,
		refresh: cfg.Refresh,
		leeway:  cfg.Leeway,
		now:     cfg.Now,
	}, nil
}

// Token returns a usable bearer token, refreshing first when the stored
// one is missing or about to expire.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	tok, ok, err := t.store.Get(ctx, t.key)
	if err != nil {
		return "", fmt.Errorf("token source: %w", err)
	}

	if ok && tok != "" && !t.expiringSoon(tok) {
		return tok, nil
	}

	if err := t.Refresh(ctx); err != nil {
		return "", err
	}

	tok, _, err = t.store.Get(ctx, t.key)
	if err != nil {
		return "", fmt.Errorf("token source: %w", err)
	}
	return tok, nil
}

// Refresh obtains and stores a new token. Concurrent callers share a
// single in-flight refresh.
func (t *TokenSource) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.refreshing {
		done := t.done
		t.mu.Unlock()
		select {
		case <-done:
			t.mu.Lock()
			defer t.mu.Unlock()
			return t.lastErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.refreshing = true
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	err := t.doRefresh(ctx)

	t.mu.Lock()
	t.refreshing = false
	t.lastErr = err
	t.mu.Unlock()
	close(done)

	return err
}

// doRefresh performs the actual refresh and store.
func (t *TokenSource) doRefresh(ctx context.Context) error {
	tok, err := t.refresh(ctx)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	if err := t.store.Set(ctx, t.key, tok); err != nil {
		return fmt.Errorf("token store: %w", err)
	}
	return nil
}

// Invalidate discards the stored token, forcing a refresh on next use.
func (t *TokenSource) Invalidate(ctx context.Context) error {
	return t.store.Remove(ctx, t.key)
}

// expiringSoon reports whether tok is a JWT whose exp claim falls
// inside the leeway window. Tokens that do not parse as JWTs are
// treated as non-expiring.
func (t *TokenSource) expiringSoon(tok string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return t.now().Add(t.leeway).After(exp.Time)
}
