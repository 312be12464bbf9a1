package providers

import (
	"encoding/json"

	"golang.org/x/oauth2/google"

	"github.com/lborres/whisper/core"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Google returns the Google provider. Subject is the OpenID "sub" claim.
func Google(cfg Config, opts ...Option) *OAuth2 {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"profile"}
	}
	return New("google", cfg, google.Endpoint, GoogleUserInfoURL, decodeGoogleProfile, opts...)
}

func decodeGoogleProfile(body []byte) (*core.ProviderProfile, error) {
	var p struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &core.ProviderProfile{SubjectID: p.Sub, DisplayName: p.Name}, nil
}
