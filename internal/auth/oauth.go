package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Credentials supplies access tokens for calendar API calls.
type Credentials interface {
	// ValidToken returns a non-expired token or ErrNotAuthorized.
	ValidToken(ctx context.Context) (*oauth2.Token, error)
	// AuthURL returns the consent URL, or "" when no consent flow exists.
	AuthURL(state string) string
}

// TokenSource adapts Credentials to an oauth2.TokenSource bound to ctx.
func TokenSource(ctx context.Context, creds Credentials) oauth2.TokenSource {
	return credentialSource{ctx: ctx, creds: creds}
}

type credentialSource struct {
	ctx   context.Context
	creds Credentials
}

func (s credentialSource) Token() (*oauth2.Token, error) {
	return s.creds.ValidToken(s.ctx)
}

// OAuthManager owns the OAuth client configuration and the persisted token.
// All token read-modify-write cycles run under one mutex so concurrent
// requests never race on a refresh.
type OAuthManager struct {
	config     *oauth2.Config
	tokenStore TokenStore

	mu sync.Mutex
}

// NewOAuthManager creates a manager for the given client configuration.
func NewOAuthManager(config *oauth2.Config, store TokenStore) *OAuthManager {
	return &OAuthManager{
		config:     config,
		tokenStore: store,
	}
}

// AuthURL returns the consent URL for out-of-band authorization. Offline
// access and forced consent make Google issue a refresh token every time.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for a token and persists it.
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	if token.RefreshToken == "" {
		// Google omits the refresh token when the user had already granted
		// access; keep the previous one if there is one.
		if prev, err := m.tokenStore.Load(ctx); err == nil && prev.RefreshToken != "" {
			token.RefreshToken = prev.RefreshToken
		} else {
			slog.Warn("authorization succeeded without a refresh token — revoke the app's access and authorize again")
		}
	}
	if err := m.tokenStore.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	return token, nil
}

// ValidToken returns the stored token, refreshing and persisting it first if
// the access token has expired.
func (m *OAuthManager) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.tokenStore.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, ErrNotAuthorized
	}
	if token.Valid() {
		return token, nil
	}

	refreshed, err := m.config.TokenSource(ctx, token).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: refresh rejected: %w", ErrNotAuthorized, err)
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if err := m.tokenStore.Save(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("saving refreshed token: %w", err)
	}
	slog.Debug("refreshed access token", "expiry", refreshed.Expiry.Format(time.RFC3339))
	return refreshed, nil
}

// TokenStatus summarizes the stored token without exposing its secrets.
type TokenStatus struct {
	Authorized      bool
	HasRefreshToken bool
	Expiry          time.Time
	Expired         bool
}

// Status reports on the stored token.
func (m *OAuthManager) Status(ctx context.Context) (TokenStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.tokenStore.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		return TokenStatus{}, nil
	}
	if err != nil {
		return TokenStatus{}, fmt.Errorf("loading token: %w", err)
	}
	return TokenStatus{
		Authorized:      token.RefreshToken != "",
		HasRefreshToken: token.RefreshToken != "",
		Expiry:          token.Expiry,
		Expired:         !token.Valid(),
	}, nil
}

// TokenStore returns the underlying token store.
func (m *OAuthManager) TokenStore() TokenStore {
	return m.tokenStore
}
