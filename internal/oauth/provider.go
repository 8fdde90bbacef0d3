// Package oauth wraps external identity providers behind a small interface
// that turns an authorization code into a verified identity.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/BradenHooton/springboard/internal/models"
	"golang.org/x/oauth2"
)

// Provider performs the authorization-code flow for one identity provider.
type Provider interface {
	Name() models.OAuthProvider
	// AuthCodeURL builds the consent URL carrying state and the S256
	// challenge derived from verifier.
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*models.OAuthIdentity, error)
}

// Registry maps provider names to configured providers.
type Registry struct {
	providers map[models.OAuthProvider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.OAuthProvider]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the named provider or models.ErrNotConfigured.
func (r *Registry) Get(name models.OAuthProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, models.ErrNotConfigured)
	}
	return p, nil
}

// NewState returns a random URL-safe state value for CSRF protection of
// the callback.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewVerifier returns a fresh PKCE code verifier (RFC 7636).
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// S256Challenge derives the code_challenge sent for verifier.
func S256Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
