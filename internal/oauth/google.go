package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BradenHooton/springboard/internal/config"
	"github.com/BradenHooton/springboard/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider exchanges Google authorization codes and reads the OpenID
// userinfo document.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// GoogleOption customises a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithEndpoint overrides the token/auth endpoints and the userinfo URL.
func WithEndpoint(endpoint oauth2.Endpoint, userInfoURL string) GoogleOption {
	return func(p *GoogleProvider) {
		p.config.Endpoint = endpoint
		p.userInfoURL = userInfoURL
	}
}

func NewGoogleProvider(cfg config.OAuthConfig, opts ...GoogleOption) *GoogleProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	p := &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GoogleProvider) Name() models.OAuthProvider {
	return models.ProviderGoogle
}

func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange trades code for a token and fetches the user's identity. Every
// failure wraps models.ErrOAuthProvider.
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*models.OAuthIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code: %w", models.ErrOAuthProvider)
	}
	if verifier == "" {
		return nil, fmt.Errorf("missing pkce verifier: %w", models.ErrOAuthProvider)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("code exchange: %v: %w", err, models.ErrOAuthProvider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %v: %w", err, models.ErrOAuthProvider)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %v: %w", err, models.ErrOAuthProvider)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("userinfo returned status %d: %w", resp.StatusCode, models.ErrOAuthProvider)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %v: %w", err, models.ErrOAuthProvider)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo missing sub or email: %w", models.ErrOAuthProvider)
	}

	return &models.OAuthIdentity{
		Provider:       models.ProviderGoogle,
		ProviderUserID: info.Sub,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		FullName:       info.Name,
		PictureURL:     info.Picture,
	}, nil
}
