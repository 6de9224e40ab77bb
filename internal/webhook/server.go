// Package webhook exposes event submission and the OAuth consent flow over HTTP.
package webhook

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/middleware"
	"github.com/evert/calendar-webhook-go/internal/submit"
)

// DefaultSecretHeader is the header carrying the shared secret.
const DefaultSecretHeader = "x-vapi-key"

// IdempotencyHeader lets callers name a delivery explicitly.
const IdempotencyHeader = "Idempotency-Key"

// maxBodyBytes caps webhook payloads.
const maxBodyBytes = 1 << 20

// Config wires the router's dependencies. OAuth is nil when the calendar
// provider needs no consent flow; MCP is nil when the MCP endpoint is off.
type Config struct {
	Service      *submit.Service
	Secret       string
	SecretHeader string
	Credentials  auth.Credentials
	OAuth        *auth.OAuthManager
	MCP          http.Handler
	Logger       *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg Config) (*mux.Router, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("webhook: submit service is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("webhook: shared secret is required")
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = DefaultSecretHeader
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &eventsHandler{
		service:      cfg.Service,
		secret:       cfg.Secret,
		secretHeader: cfg.SecretHeader,
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(cfg.Logger))

	for _, p := range []string{"/events", "/webhook/v1/events", "/webhook/v1", "/"} {
		r.Handle(p, h).Methods(http.MethodPost)
	}

	if cfg.Credentials != nil {
		authorize := auth.AuthorizeHandler(cfg.Credentials)
		for _, p := range []string{"/authorize", "/webhook/v1/authorize"} {
			r.Handle(p, authorize).Methods(http.MethodGet)
		}
	}
	if cfg.OAuth != nil {
		callback := auth.OAuthCallbackHandler(cfg.OAuth)
		for _, p := range []string{"/oauth2callback", "/webhook/v1/oauth2callback"} {
			r.Handle(p, callback).Methods(http.MethodGet, http.MethodPost)
		}
	}

	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	for _, p := range []string{"/health", "/"} {
		r.HandleFunc(p, health).Methods(http.MethodGet, http.MethodHead)
	}
	return r, nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
