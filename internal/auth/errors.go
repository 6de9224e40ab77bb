package auth

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized means no usable refresh token is on record. The operator
// must complete the consent flow before events can be inserted.
var ErrNotAuthorized = errors.New("calendar access not authorized — visit the authorization URL and complete the consent flow")

// ErrNoToken is returned by a TokenStore that holds no token. Unreadable or
// corrupt records are reported the same way.
var ErrNoToken = errors.New("no stored token")

// ConfigError reports missing or malformed OAuth client configuration.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("OAuth client configuration: %v", e.Err)
	}
	return fmt.Sprintf("OAuth client configuration from %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ExchangeError reports that the provider rejected an authorization code.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchanging authorization code: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
