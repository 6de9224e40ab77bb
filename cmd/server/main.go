package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/config"
	"github.com/evert/calendar-webhook-go/internal/mcptools"
	"github.com/evert/calendar-webhook-go/internal/webhook"
)

var version = "dev"

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.App{
		Name:    "calendar-webhook",
		Usage:   "Create calendar events from voice-assistant tool calls.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"CONFIG_FILE"}, Usage: "YAML or TOML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides LOG_LEVEL)"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpStdioCommand(),
			authorizeCommand(),
			tokenCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		cancel()
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
	cancel()
}

// loadConfig reads the config and installs the logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = strings.ToLower(c.String("log-level"))
	}
	slog.SetDefault(newLogger(cfg.LogLevel))
	if cfg.File != "" {
		slog.Info("loaded config file", "path", cfg.File)
	}
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the webhook HTTP server.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "listen host (overrides HOST)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port (overrides PORT)"},
			&cli.BoolFlag{Name: "mcp", Usage: "also serve MCP over streamable HTTP at /mcp (overrides MCP_ENABLED)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("host") {
				cfg.Server.Host = c.String("host")
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if c.IsSet("mcp") {
				cfg.MCPEnabled = c.Bool("mcp")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(c.Context, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	comps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			slog.Error("closing resources", "error", err)
		}
	}()

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		server := mcptools.NewServer(version, comps.service, comps.creds, logger)
		mcpHandler = mcptools.Handler(server)
	}

	router, err := webhook.NewRouter(webhook.Config{
		Service:      comps.service,
		Secret:       cfg.Webhook.Secret,
		SecretHeader: cfg.Webhook.SecretHeader,
		Credentials:  comps.creds,
		OAuth:        comps.oauth,
		MCP:          mcpHandler,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if comps.oauth != nil {
		if st, err := comps.oauth.Status(ctx); err == nil && !st.Authorized {
			slog.Warn("calendar access not authorized yet", "authorize_url", comps.oauth.AuthURL(auth.DefaultState))
		}
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("starting calendar webhook",
		"addr", addr,
		"provider", cfg.Calendar.Provider,
		"mcp", cfg.MCPEnabled,
		"version", version,
	)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

func mcpStdioCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the calendar tools over MCP stdio.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.ValidateBackends(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			comps, err := build(c.Context, cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			// Logs go to stderr; stdout carries the protocol.
			server := mcptools.NewServer(version, comps.service, comps.creds, slog.Default())
			if err := server.Run(c.Context, &mcp.StdioTransport{}); err != nil {
				return fmt.Errorf("stdio server error: %w", err)
			}
			return nil
		},
	}
}

// oauthFromConfig builds the OAuth manager for the consent commands.
func oauthFromConfig(c *cli.Context) (*auth.OAuthManager, *components, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Calendar.Provider != config.ProviderGoogle {
		return nil, nil, fmt.Errorf("the %s provider has no consent flow", cfg.Calendar.Provider)
	}
	if err := cfg.ValidateBackends(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	comps := &components{}
	_, mgr, err := buildCredentials(c.Context, cfg, comps)
	if err != nil {
		_ = comps.Close()
		return nil, nil, err
	}
	if mgr == nil {
		_ = comps.Close()
		return nil, nil, fmt.Errorf("service account credentials need no consent")
	}
	return mgr, comps, nil
}

func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "authorize",
		Usage: "Print the consent URL and store the token for an authorization code.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "code", Usage: "authorization code to exchange (prompted for when omitted)"},
		},
		Action: func(c *cli.Context) error {
			mgr, comps, err := oauthFromConfig(c)
			if err != nil {
				return err
			}
			defer comps.Close()

			code := c.String("code")
			if code == "" {
				fmt.Printf("Go to the following link in your browser and approve calendar access:\n%s\n\n", mgr.AuthURL(auth.DefaultState))
				fmt.Print("Enter the authorization code (leave empty if the server's /oauth2callback will receive it): ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				code = strings.TrimSpace(line)
				if code == "" {
					return nil
				}
			}

			tok, err := mgr.ExchangeCode(c.Context, code)
			if err != nil {
				return err
			}
			slog.Info("authorization stored", "expiry", tok.Expiry, "has_refresh_token", tok.RefreshToken != "")
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Show the stored token's status, or export it for TOKEN_STORE=env.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "export", Usage: "print the token as JSON"},
		},
		Action: func(c *cli.Context) error {
			mgr, comps, err := oauthFromConfig(c)
			if err != nil {
				return err
			}
			defer comps.Close()

			if c.Bool("export") {
				tok, err := mgr.TokenStore().Load(c.Context)
				if err != nil {
					return err
				}
				data, err := json.Marshal(tok)
				if err != nil {
					return fmt.Errorf("encoding token: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			st, err := mgr.Status(c.Context)
			if err != nil {
				return err
			}
			if !st.Authorized {
				fmt.Printf("not authorized — run the authorize command or visit:\n%s\n", mgr.AuthURL(auth.DefaultState))
				return nil
			}
			fmt.Printf("authorized\nrefresh token: %t\nexpiry: %s\nexpired: %t\n",
				st.HasRefreshToken, st.Expiry.Format(time.RFC3339), st.Expired)
			return nil
		},
	}
}
