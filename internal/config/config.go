package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evert/calendar-webhook-go/internal/pkg/validate"
)

// Token store backends.
const (
	TokenStoreFile   = "file"
	TokenStoreEnv    = "env"
	TokenStoreSQLite = "sqlite"
	TokenStoreMemory = "memory"
)

// Calendar providers.
const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"
)

// Idempotency store backends.
const (
	IdempotencyNone   = "none"
	IdempotencyMemory = "memory"
	IdempotencyRedis  = "redis"
)

// Config holds all server configuration loaded from the environment, an
// optional config file and CLI flags.
type Config struct {
	Webhook struct {
		Secret       string
		SecretHeader string
	}
	OAuth struct {
		ClientSecretFile string
		ClientSecretJSON string
		ClientSecretDir  string
		ClientID         string
		ClientSecret     string
		RedirectURL      string
		Subject          string
		Scopes           []string
	}
	Token struct {
		Store  string
		Path   string
		EnvVar string
		DBPath string
	}
	Calendar struct {
		Provider          string
		DefaultCalendarID string
		TimeZone          string
		SendUpdates       string
		CalDAVURL         string
		CalDAVUsername    string
		CalDAVPassword    string
	}
	Idempotency struct {
		Store    string
		TTL      time.Duration
		RedisURL string
	}
	Server struct {
		Host string
		Port int
	}
	MCPEnabled bool
	LogLevel   string
	// File is the config file the values were read from, if any.
	File string
}

// Load reads configuration from environment variables and, when path is
// non-empty, a YAML or TOML file. Environment variables take precedence over
// the file. The result is not validated; call Validate after applying any
// CLI overrides.
func Load(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	src := source{file: file}

	cfg := &Config{File: path}

	cfg.Webhook.Secret = src.str("VAPI_SHARED_SECRET", "")
	cfg.Webhook.SecretHeader = src.str("SHARED_SECRET_HEADER", "x-vapi-key")

	cfg.OAuth.ClientSecretFile = src.str("GOOGLE_CLIENT_SECRET_FILE", "")
	cfg.OAuth.ClientSecretJSON = src.str("GOOGLE_CLIENT_SECRET_JSON", "")
	cfg.OAuth.ClientSecretDir = src.str("GOOGLE_CLIENT_SECRET_DIR", "")
	cfg.OAuth.ClientID = src.str("GOOGLE_OAUTH_CLIENT_ID", "")
	cfg.OAuth.ClientSecret = src.str("GOOGLE_OAUTH_CLIENT_SECRET", "")
	cfg.OAuth.RedirectURL = src.str("OAUTH_REDIRECT_URL", "")
	cfg.OAuth.Subject = src.str("GOOGLE_IMPERSONATE_SUBJECT", "")
	cfg.OAuth.Scopes = splitList(src.str("GOOGLE_SCOPES", ""))

	cfg.Token.Store = strings.ToLower(src.str("TOKEN_STORE", TokenStoreFile))
	cfg.Token.Path = src.str("TOKEN_PATH", "token.json")
	cfg.Token.EnvVar = src.str("TOKEN_ENV_VAR", "GOOGLE_TOKEN_JSON")
	cfg.Token.DBPath = src.str("TOKEN_DB_PATH", "tokens.db")

	cfg.Calendar.Provider = strings.ToLower(src.str("CALENDAR_PROVIDER", ProviderGoogle))
	cfg.Calendar.DefaultCalendarID = src.str("DEFAULT_CALENDAR_ID", "primary")
	cfg.Calendar.TimeZone = src.str("TIMEZONE", "UTC")
	cfg.Calendar.SendUpdates = canonicalSendUpdates(src.str("SEND_UPDATES", "all"))
	cfg.Calendar.CalDAVURL = src.str("CALDAV_URL", "")
	cfg.Calendar.CalDAVUsername = src.str("CALDAV_USERNAME", "")
	cfg.Calendar.CalDAVPassword = src.str("CALDAV_PASSWORD", "")

	cfg.Idempotency.Store = strings.ToLower(src.str("IDEMPOTENCY_STORE", IdempotencyMemory))
	cfg.Idempotency.RedisURL = src.str("REDIS_URL", "")
	ttl := src.str("IDEMPOTENCY_TTL", "24h")
	if cfg.Idempotency.TTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL %q: %w", ttl, err)
	}

	cfg.Server.Host = src.str("HOST", "0.0.0.0")
	portStr := src.str("PORT", "3000")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	cfg.Server.Port = port

	cfg.MCPEnabled = parseBool(src.str("MCP_ENABLED", "false"))
	cfg.LogLevel = strings.ToLower(src.str("LOG_LEVEL", "info"))

	return cfg, nil
}

// Validate checks that the configuration can start the webhook server.
func (c *Config) Validate() error {
	if c.Webhook.Secret == "" {
		return fmt.Errorf("VAPI_SHARED_SECRET is required")
	}
	if c.Webhook.SecretHeader == "" {
		return fmt.Errorf("SHARED_SECRET_HEADER must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return c.ValidateBackends()
}

// ValidateBackends checks the calendar, token and idempotency settings only.
// Commands that never accept webhook calls use it instead of Validate.
func (c *Config) ValidateBackends() error {
	if _, err := validate.TimeZone(c.Calendar.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	switch c.Calendar.Provider {
	case ProviderGoogle:
		switch c.Token.Store {
		case TokenStoreFile, TokenStoreEnv, TokenStoreSQLite, TokenStoreMemory:
		default:
			return fmt.Errorf("unknown TOKEN_STORE %q — use file, env, sqlite or memory", c.Token.Store)
		}
		switch c.Calendar.SendUpdates {
		case "all", "externalOnly", "none":
		default:
			return fmt.Errorf("unknown SEND_UPDATES %q — use all, externalOnly or none", c.Calendar.SendUpdates)
		}
	case ProviderCalDAV:
		if c.Calendar.CalDAVURL == "" {
			return fmt.Errorf("CALDAV_URL is required for the caldav provider")
		}
		if u, err := url.Parse(c.Calendar.CalDAVURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CALDAV_URL %q is not an absolute URL", c.Calendar.CalDAVURL)
		}
	default:
		return fmt.Errorf("unknown CALENDAR_PROVIDER %q — use google or caldav", c.Calendar.Provider)
	}

	switch c.Idempotency.Store {
	case IdempotencyNone, IdempotencyMemory:
	case IdempotencyRedis:
		if c.Idempotency.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when IDEMPOTENCY_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_STORE %q — use none, memory or redis", c.Idempotency.Store)
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// source resolves a setting from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s source) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return def
}

// canonicalSendUpdates restores the API's casing for case-insensitive input.
func canonicalSendUpdates(v string) string {
	switch strings.ToLower(v) {
	case "all":
		return "all"
	case "externalonly", "external_only", "external":
		return "externalOnly"
	case "none":
		return "none"
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}
