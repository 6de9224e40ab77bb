package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// OutOfBandRedirect is used when neither the configuration nor the client
// file names a redirect URI.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// ClientSource lists where OAuth client configuration may come from. Sources
// are tried in field order; the first one present wins.
type ClientSource struct {
	// File is an explicit path to a client secret JSON file.
	File string
	// JSON is the content of a client secret file, usually from an env var.
	JSON string
	// ClientID and ClientSecret configure a web client without a file.
	ClientID     string
	ClientSecret string
	// Dir is scanned for client_secret*.json or credentials.json.
	Dir string
	// RedirectURL overrides the redirect URI found in the file.
	RedirectURL string
	// Subject is the user a service account impersonates (domain-wide delegation).
	Subject string
}

// ClientConfig is the loaded client configuration. Exactly one of OAuth and
// ServiceAccount is set.
type ClientConfig struct {
	OAuth          *oauth2.Config
	ServiceAccount *jwt.Config
	// Source describes where the configuration was read from.
	Source string
}

// LoadClientConfig reads client configuration from the first available source.
// The JSON must carry a "web" or "installed" section, or be a service account key.
func LoadClientConfig(src ClientSource, scopes []string) (*ClientConfig, error) {
	switch {
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, &ConfigError{Source: src.File, Err: err}
		}
		return parseClientJSON(data, src, scopes, src.File)

	case src.JSON != "":
		return parseClientJSON([]byte(src.JSON), src, scopes, "environment")

	case src.ClientID != "" || src.ClientSecret != "":
		if src.ClientID == "" || src.ClientSecret == "" {
			return nil, &ConfigError{Source: "environment", Err: errors.New("both client id and client secret are required")}
		}
		return &ClientConfig{
			OAuth: &oauth2.Config{
				ClientID:     src.ClientID,
				ClientSecret: src.ClientSecret,
				RedirectURL:  redirectOrDefault(src.RedirectURL, ""),
				Scopes:       scopes,
				Endpoint:     google.Endpoint,
			},
			Source: "environment",
		}, nil

	case src.Dir != "":
		path, err := findClientSecretFile(src.Dir)
		if err != nil {
			return nil, &ConfigError{Source: src.Dir, Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Source: path, Err: err}
		}
		return parseClientJSON(data, src, scopes, path)
	}
	return nil, &ConfigError{Err: errors.New("no client secret file, JSON, or client id/secret configured")}
}

func parseClientJSON(data []byte, src ClientSource, scopes []string, origin string) (*ClientConfig, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ConfigError{Source: origin, Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	if probe.Type == "service_account" {
		cfg, err := google.JWTConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, &ConfigError{Source: origin, Err: err}
		}
		cfg.Subject = src.Subject
		return &ClientConfig{ServiceAccount: cfg, Source: origin}, nil
	}

	var file clientSecretFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Source: origin, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	section := file.Web
	if section == nil {
		section = file.Installed
	}
	if section == nil {
		return nil, &ConfigError{Source: origin, Err: errors.New("missing 'web' or 'installed' section")}
	}
	if section.ClientID == "" || section.ClientSecret == "" {
		return nil, &ConfigError{Source: origin, Err: errors.New("client_id and client_secret are required")}
	}

	endpoint := google.Endpoint
	if section.AuthURI != "" {
		endpoint.AuthURL = section.AuthURI
	}
	if section.TokenURI != "" {
		endpoint.TokenURL = section.TokenURI
	}
	var fromFile string
	if len(section.RedirectURIs) > 0 {
		fromFile = section.RedirectURIs[0]
	}

	return &ClientConfig{
		OAuth: &oauth2.Config{
			ClientID:     section.ClientID,
			ClientSecret: section.ClientSecret,
			RedirectURL:  redirectOrDefault(src.RedirectURL, fromFile),
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		Source: origin,
	}, nil
}

// clientSecretFile mirrors the JSON downloaded from Google Cloud Console.
// google.ConfigFromJSON is not used because it rejects files without
// redirect_uris, which out-of-band clients legitimately omit.
type clientSecretFile struct {
	Web       *clientSection `json:"web"`
	Installed *clientSection `json:"installed"`
}

type clientSection struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

func redirectOrDefault(override, fromFile string) string {
	if override != "" {
		return override
	}
	if fromFile != "" {
		return fromFile
	}
	return OutOfBandRedirect
}

// findClientSecretFile prefers client_secret_*.json (the name Google Cloud
// Console downloads use) and falls back to credentials.json.
func findClientSecretFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "client_secret*.json"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	if len(matches) > 0 {
		return matches[0], nil
	}
	path := filepath.Join(dir, "credentials.json")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no client_secret*.json or credentials.json found in %s", dir)
}
