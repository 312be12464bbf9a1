package core

import (
	"log/slog"
	"time"

	"github.com/lborres/whisper/pkg/crypto"
)

type Config struct {
	// Signs oauth state. At least 32 characters.
	Secret string

	Database AccountStorage
	HTTP     HTTPAdapter

	// Optional config

	// Sessions defaults to Database when it also implements SessionStorage
	Sessions       SessionStorage
	Providers      []OAuthProvider
	CacheAdapter   Cache
	DisableCache   bool
	SessionConfig  *SessionConfig
	PasswordHasher crypto.PasswordHandler
	Logger         *slog.Logger
}

type SessionConfig struct {
	MaxAge time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge: 24 * time.Hour,
	}
}

// RegisterInput contains the data needed to create a local account
type RegisterInput struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// LoginInput contains the credentials for authentication
type LoginInput struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// AuthResult contains the authenticated account and its new session
type AuthResult struct {
	Account *Account    `json:"account"`
	Session *Session    `json:"session"`
	Token   string      `json:"token"` // The raw token (not the hash)
	Kind    OutcomeKind `json:"-"`
}

// CreateSessionResult is what the session manager hands back on issue
type CreateSessionResult struct {
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}
