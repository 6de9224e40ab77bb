package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// tokenServer fakes the provider's token endpoint. It counts requests and
// answers according to the grant type.
type tokenServer struct {
	*httptest.Server
	calls        atomic.Int32
	rejectGrant  bool
	refreshToken string
}

func newTokenServer(t *testing.T, opts ...func(*tokenServer)) *tokenServer {
	t.Helper()
	ts := &tokenServer{refreshToken: "issued-refresh"}
	for _, opt := range opts {
		opt(ts)
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if ts.rejectGrant {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			if ts.refreshToken == "" {
				fmt.Fprint(w, `{"access_token":"exchanged-access","token_type":"Bearer","expires_in":3600}`)
				return
			}
			fmt.Fprintf(w, `{"access_token":"exchanged-access","refresh_token":%q,"token_type":"Bearer","expires_in":3600}`, ts.refreshToken)
		case "refresh_token":
			// Refresh responses omit the refresh token, as Google's do.
			fmt.Fprintf(w, `{"access_token":"refreshed-%d","token_type":"Bearer","expires_in":3600}`, n)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/oauth2callback",
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/o/oauth2/auth",
			TokenURL:  ts.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func expiredToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "stored-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}
}

func TestOAuthManager_AuthURL(t *testing.T) {
	ts := newTokenServer(t)
	mgr := NewOAuthManager(ts.config(), NewInMemoryTokenStore())

	raw := mgr.AuthURL(DefaultState)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	q := u.Query()
	checks := map[string]string{
		"access_type":  "offline",
		"prompt":       "consent",
		"state":        DefaultState,
		"client_id":    "client-id",
		"redirect_uri": "http://localhost:8080/oauth2callback",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if !strings.Contains(q.Get("scope"), CalendarScope) {
		t.Errorf("scope = %q, want it to include %s", q.Get("scope"), CalendarScope)
	}
}

func TestOAuthManager_ValidToken_NotAuthorized(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		token *oauth2.Token
	}{
		{name: "nothing stored"},
		{name: "no refresh token", token: &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryTokenStore()
			if tt.token != nil {
				_ = store.Save(ctx, tt.token)
			}
			mgr := NewOAuthManager(ts.config(), store)

			_, err := mgr.ValidToken(ctx)
			if !errors.Is(err, ErrNotAuthorized) {
				t.Fatalf("ValidToken error = %v, want ErrNotAuthorized", err)
			}
		})
	}
	if n := ts.calls.Load(); n != 0 {
		t.Errorf("token endpoint called %d times, want 0", n)
	}
}

func TestOAuthManager_ValidToken_Unexpired(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, &oauth2.Token{
		AccessToken:  "fresh",
		RefreshToken: "stored-refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	mgr := NewOAuthManager(ts.config(), store)

	tok, err := mgr.ValidToken(ctx)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("AccessToken = %q, want fresh", tok.AccessToken)
	}
	if n := ts.calls.Load(); n != 0 {
		t.Errorf("token endpoint called %d times, want 0", n)
	}
}

func TestOAuthManager_ValidToken_RefreshesAndPersists(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, expiredToken())
	mgr := NewOAuthManager(ts.config(), store)

	tok, err := mgr.ValidToken(ctx)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if !strings.HasPrefix(tok.AccessToken, "refreshed-") {
		t.Errorf("AccessToken = %q, want a refreshed token", tok.AccessToken)
	}
	if tok.RefreshToken != "stored-refresh" {
		t.Errorf("RefreshToken = %q, want the stored one to be kept", tok.RefreshToken)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Errorf("Expiry = %v, want a future time", tok.Expiry)
	}

	persisted, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted.AccessToken != tok.AccessToken || persisted.RefreshToken != "stored-refresh" {
		t.Errorf("persisted token = %+v, want refreshed access and kept refresh token", persisted)
	}
}

func TestOAuthManager_ValidToken_RevokedGrant(t *testing.T) {
	ts := newTokenServer(t, func(ts *tokenServer) { ts.rejectGrant = true })
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, expiredToken())
	mgr := NewOAuthManager(ts.config(), store)

	_, err := mgr.ValidToken(ctx)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("ValidToken error = %v, want ErrNotAuthorized", err)
	}
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Errorf("error does not wrap the provider response: %v", err)
	}
}

func TestOAuthManager_ValidToken_ConcurrentRefreshOnce(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, expiredToken())
	mgr := NewOAuthManager(ts.config(), store)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	errs := make([]error, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := mgr.ValidToken(ctx)
			errs[i] = err
			if tok != nil {
				tokens[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want exactly 1", n)
	}
	for i, tok := range tokens {
		if tok != tokens[0] {
			t.Errorf("goroutine %d got %q, want %q", i, tok, tokens[0])
		}
	}
}

func TestOAuthManager_ExchangeCode(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	mgr := NewOAuthManager(ts.config(), store)

	tok, err := mgr.ExchangeCode(ctx, "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "exchanged-access" || tok.RefreshToken != "issued-refresh" {
		t.Errorf("token = %+v", tok)
	}

	got, err := mgr.ValidToken(ctx)
	if err != nil {
		t.Fatalf("ValidToken after exchange: %v", err)
	}
	if got.AccessToken != "exchanged-access" {
		t.Errorf("ValidToken AccessToken = %q, want exchanged-access", got.AccessToken)
	}
}

func TestOAuthManager_ExchangeCode_KeepsPreviousRefreshToken(t *testing.T) {
	ts := newTokenServer(t, func(ts *tokenServer) { ts.refreshToken = "" })
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, expiredToken())
	mgr := NewOAuthManager(ts.config(), store)

	tok, err := mgr.ExchangeCode(ctx, "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.RefreshToken != "stored-refresh" {
		t.Errorf("RefreshToken = %q, want previous stored-refresh", tok.RefreshToken)
	}
}

func TestOAuthManager_ExchangeCode_Rejected(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	mgr := NewOAuthManager(ts.config(), store)

	_, err := mgr.ExchangeCode(ctx, "bad-code")
	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("ExchangeCode error = %v, want *ExchangeError", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNoToken) {
		t.Errorf("store after failed exchange: %v, want ErrNoToken", err)
	}
}

func TestOAuthManager_Status(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	mgr := NewOAuthManager(ts.config(), store)

	st, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Authorized {
		t.Error("empty store reported as authorized")
	}

	_ = store.Save(ctx, expiredToken())
	st, err = mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Authorized || !st.HasRefreshToken || !st.Expired {
		t.Errorf("status = %+v, want authorized, with refresh token, expired", st)
	}
}

func TestTokenSource(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()
	store := NewInMemoryTokenStore()
	_ = store.Save(ctx, expiredToken())
	mgr := NewOAuthManager(ts.config(), store)

	tok, err := TokenSource(ctx, mgr).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if !tok.Valid() {
		t.Errorf("token from source is not valid: %+v", tok)
	}
}
