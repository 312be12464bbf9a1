package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// AccountStorage is the persistent identity store
//
// Implementations enforce uniqueness of usernames and of (provider, subject)
// pairs at the storage level, and make secret mutations atomic per account.
type AccountStorage interface {
	// CreateLocalAccount returns ErrDuplicateUsername when the username is taken
	CreateLocalAccount(ctx context.Context, a *Account) error
	// CreateFederatedAccount stores a and links it to (provider, subject) in one unit.
	// Returns ErrFederatedIdentityExists when the pair is already linked.
	CreateFederatedAccount(ctx context.Context, a *Account, provider, subject string) error

	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (*Account, error)

	AppendSecret(ctx context.Context, accountID, text string) error
	// RemoveSecret deletes the first occurrence of text. Absent text is not an error.
	RemoveSecret(ctx context.Context, accountID, text string) error
	ListAccountsWithSecrets(ctx context.Context) ([]*Account, error)
}

// SessionStorage defines session-related database operations
type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)
	// SessionExists reports whether tokenHash still has a stored session
	SessionExists(ctx context.Context, tokenHash string) (bool, error)
	// DeleteSessionByHash is idempotent
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteAccountSessions(ctx context.Context, accountID string) (int, error)
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

// StorageAdapter is a backend that holds both accounts and sessions
type StorageAdapter interface {
	AccountStorage
	SessionStorage
}

// ============================================
// CACHE PORT
// ============================================

// Cache defines session caching operations
type Cache interface {
	Get(tokenHash string) (*Session, error)
	Set(tokenHash string, session *Session) error
	Delete(tokenHash string) error
	Clear() error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// IDENTITY PROVIDER PORT
// ============================================

// OAuthProvider is one external identity provider
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	// Exchange trades the callback code for the user's profile
	Exchange(ctx context.Context, code string) (*ProviderProfile, error)
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	StartOAuth(provider string) (*OAuthFlow, error)
	CompleteOAuth(ctx context.Context, provider string, params CallbackParams, expectedState string) (*AuthResult, error)
	Logout(ctx context.Context, token string) error

	Authorize(ctx context.Context, token string) (*Account, error)
	GetSession(ctx context.Context, token string) (*SessionData, error)

	ListPublicSecrets(ctx context.Context, token string) ([]PublicSecret, error)
	OwnSecrets(ctx context.Context, token string) ([]string, error)
	AddSecret(ctx context.Context, token, text string) ([]string, error)
	RemoveSecret(ctx context.Context, token, text string) ([]string, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(handler AuthHandler, endpoints []*Endpoint) error
}
