// Package providers implements core.OAuthProvider on top of golang.org/x/oauth2.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/lborres/whisper/core"
)

// maxProfileSize caps how much of a userinfo response is read
const maxProfileSize = 1 << 20

// Config holds the per-provider client registration
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
}

// Enabled reports whether both halves of the client registration are set
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ProfileDecoder turns a userinfo body into a profile. Provider is filled in by the caller.
type ProfileDecoder func(body []byte) (*core.ProviderProfile, error)

// OAuth2 is an authorization-code provider with a userinfo endpoint
type OAuth2 struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	decode      ProfileDecoder
	httpClient  *http.Client
}

type Option func(*OAuth2)

// WithHTTPClient sets the client used for the token exchange and the profile fetch
func WithHTTPClient(c *http.Client) Option {
	return func(p *OAuth2) { p.httpClient = c }
}

// WithEndpoint overrides the authorization and token URLs
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(p *OAuth2) { p.config.Endpoint = e }
}

func WithUserInfoURL(url string) Option {
	return func(p *OAuth2) { p.userInfoURL = url }
}

var _ core.OAuthProvider = (*OAuth2)(nil)

func New(name string, cfg Config, endpoint oauth2.Endpoint, userInfoURL string, decode ProfileDecoder, opts ...Option) *OAuth2 {
	p := &OAuth2{
		name: strings.ToLower(name),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		decode:      decode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OAuth2) Name() string { return p.name }

func (p *OAuth2) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades code for a token and fetches the user's profile with it
func (p *OAuth2) Exchange(ctx context.Context, code string) (*core.ProviderProfile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: token exchange: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build profile request: %w", p.name, err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch profile: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: fetch profile: unexpected status %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read profile: %w", p.name, err)
	}

	profile, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: decode profile: %w", p.name, err)
	}
	profile.Provider = p.name
	return profile, nil
}
