package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

// ServiceAccount issues tokens from a service account key. There is no
// consent flow and nothing is persisted.
type ServiceAccount struct {
	config *jwt.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewServiceAccount wraps a parsed service account configuration.
func NewServiceAccount(config *jwt.Config) *ServiceAccount {
	return &ServiceAccount{config: config}
}

// ValidToken returns a cached token, minting a new one when it expires.
func (s *ServiceAccount) ValidToken(_ context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	if s.source == nil {
		// The cached source outlives any single request.
		s.source = s.config.TokenSource(context.Background())
	}
	src := s.source
	s.mu.Unlock()

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("service account token for %s: %w", s.config.Email, err)
	}
	return token, nil
}

// AuthURL returns "" since service accounts need no user consent.
func (s *ServiceAccount) AuthURL(string) string {
	return ""
}
