package providers

import (
	"encoding/json"

	"golang.org/x/oauth2/facebook"

	"github.com/lborres/whisper/core"
)

const FacebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name"

// Facebook returns the Facebook provider. Subject is the app-scoped user id.
func Facebook(cfg Config, opts ...Option) *OAuth2 {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"public_profile"}
	}
	return New("facebook", cfg, facebook.Endpoint, FacebookUserInfoURL, decodeFacebookProfile, opts...)
}

func decodeFacebookProfile(body []byte) (*core.ProviderProfile, error) {
	var p struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &core.ProviderProfile{SubjectID: p.ID, DisplayName: p.Name}, nil
}
