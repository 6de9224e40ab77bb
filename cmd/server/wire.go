package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/calendar"
	"github.com/evert/calendar-webhook-go/internal/config"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/idempotency"
	"github.com/evert/calendar-webhook-go/internal/submit"
)

// components are the long-lived pieces shared by the HTTP and stdio servers.
type components struct {
	// creds is nil for providers without Google credentials.
	creds auth.Credentials
	// oauth is set only for the installed/web client flow.
	oauth   *auth.OAuthManager
	service *submit.Service
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires credentials, the calendar provider and the idempotency store.
// On error, anything already opened is closed.
func build(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	var inserter calendar.Inserter
	switch cfg.Calendar.Provider {
	case config.ProviderCalDAV:
		inserter, err = calendar.NewCalDAV(cfg.Calendar.CalDAVURL, cfg.Calendar.CalDAVUsername, cfg.Calendar.CalDAVPassword, nil)
		if err != nil {
			return nil, err
		}
		slog.Info("calendar provider", "provider", "caldav", "url", cfg.Calendar.CalDAVURL)

	default:
		c.creds, c.oauth, err = buildCredentials(ctx, cfg, c)
		if err != nil {
			return nil, err
		}
		inserter, err = calendar.NewGoogle(ctx, c.creds, cfg.Calendar.SendUpdates)
		if err != nil {
			return nil, err
		}
		slog.Info("calendar provider", "provider", "google", "send_updates", cfg.Calendar.SendUpdates)
	}

	c.service = &submit.Service{
		Inserter:    inserter,
		Credentials: c.creds,
		Options: event.Options{
			DefaultTimeZone:   cfg.Calendar.TimeZone,
			DefaultCalendarID: cfg.Calendar.DefaultCalendarID,
		},
	}

	switch cfg.Idempotency.Store {
	case config.IdempotencyMemory:
		c.service.Idempotency = idempotency.NewMemoryStore(cfg.Idempotency.TTL)
	case config.IdempotencyRedis:
		rs, err := idempotency.NewRedisStore(ctx, cfg.Idempotency.RedisURL, cfg.Idempotency.TTL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, rs.Close)
		c.service.Idempotency = rs
	}
	slog.Info("idempotency store", "store", cfg.Idempotency.Store, "ttl", cfg.Idempotency.TTL)

	return c, nil
}

// buildCredentials loads the Google client configuration. A service account
// key yields a ServiceAccount; anything else an OAuthManager backed by the
// configured token store.
func buildCredentials(ctx context.Context, cfg *config.Config, c *components) (auth.Credentials, *auth.OAuthManager, error) {
	client, err := auth.LoadClientConfig(auth.ClientSource{
		File:         cfg.OAuth.ClientSecretFile,
		JSON:         cfg.OAuth.ClientSecretJSON,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Dir:          cfg.OAuth.ClientSecretDir,
		RedirectURL:  cfg.OAuth.RedirectURL,
		Subject:      cfg.OAuth.Subject,
	}, auth.Scopes(cfg.OAuth.Scopes))
	if err != nil {
		return nil, nil, err
	}

	if client.ServiceAccount != nil {
		slog.Info("using service account credentials", "email", client.ServiceAccount.Email, "source", client.Source)
		return auth.NewServiceAccount(client.ServiceAccount), nil, nil
	}

	store, err := openTokenStore(ctx, cfg, c)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using OAuth client credentials",
		"source", client.Source,
		"redirect_url", client.OAuth.RedirectURL,
		"token_store", cfg.Token.Store,
	)
	mgr := auth.NewOAuthManager(client.OAuth, store)
	return mgr, mgr, nil
}

func openTokenStore(ctx context.Context, cfg *config.Config, c *components) (auth.TokenStore, error) {
	switch cfg.Token.Store {
	case config.TokenStoreEnv:
		return auth.NewEnvTokenStore(cfg.Token.EnvVar), nil
	case config.TokenStoreMemory:
		slog.Warn("token store is in memory — authorization is lost on restart")
		return auth.NewInMemoryTokenStore(), nil
	case config.TokenStoreSQLite:
		s, err := auth.NewSQLiteTokenStore(ctx, cfg.Token.DBPath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	case config.TokenStoreFile:
		s, err := auth.NewFileTokenStore(cfg.Token.Path)
		if err != nil {
			return nil, err
		}
		slog.Debug("token file", "path", s.Path())
		return s, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Token.Store)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
