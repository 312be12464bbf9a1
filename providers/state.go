package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lborres/whisper/pkg/crypto"
)

const (
	DefaultStateTTL = 10 * time.Minute
	stateIssuer     = "whisper"
)

var ErrStateProviderMismatch = errors.New("state was issued for another provider")

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateSigner issues the OAuth state parameter as a short-lived HS256 token
// bound to one provider
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{key: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *StateSigner) Issue(provider string) (string, error) {
	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, expiry and that state was issued for provider
func (s *StateSigner) Verify(state, provider string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &stateClaims{}
	if _, err := parser.ParseWithClaims(state, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}); err != nil {
		return fmt.Errorf("parse state: %w", err)
	}

	if claims.Provider != provider {
		return ErrStateProviderMismatch
	}
	return nil
}
