package whisper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/pkg/cache"
	"github.com/lborres/whisper/pkg/crypto"
	"github.com/lborres/whisper/providers"
	"github.com/lborres/whisper/services"
)

// interfaces
type (
	AccountStorage = core.AccountStorage
	SessionStorage = core.SessionStorage
	StorageAdapter = core.StorageAdapter
	Cache          = core.Cache
	OAuthProvider  = core.OAuthProvider

	HTTPAdapter = core.HTTPAdapter
	AuthHandler = core.AuthHandler

	PasswordHandler = crypto.PasswordHandler
)

// structs
type (
	Config        = core.Config
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig
)

type (
	Account         = core.Account
	Session         = core.Session
	SessionData     = core.SessionData
	PublicSecret    = core.PublicSecret
	ProviderProfile = core.ProviderProfile
	AuthResult      = core.AuthResult
	CacheStats      = core.CacheStats
)

const (
	defaultSecretLen = 32
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 500
)

// Constructors & helpers (convenience re-exports)
var (
	NewLRUCache          = cache.NewLRUCache
	NewArgon2            = crypto.NewArgon2
	DefaultSessionConfig = core.DefaultSessionConfig
)

var (
	ErrDuplicateUsername  = core.ErrDuplicateUsername
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrProviderProtocol   = core.ErrProviderProtocol
	ErrDenied             = core.ErrDenied
)

var (
	ErrUnknownOrExpiredSession = core.ErrUnknownOrExpiredSession
	ErrUnauthenticated         = core.ErrUnauthenticated
	ErrAccountNotFound         = core.ErrAccountNotFound
)

var (
	ErrUsernameRequired = core.ErrUsernameRequired
	ErrPasswordRequired = core.ErrPasswordRequired
	ErrPasswordTooLong  = core.ErrPasswordTooLong
	ErrEmptySecret      = core.ErrEmptySecret
	ErrUnknownProvider  = core.ErrUnknownProvider
	ErrInvalidState     = core.ErrInvalidState
)

var (
	ErrDBAdapterRequired      = core.ErrDBAdapterRequired
	ErrSessionStorageRequired = core.ErrSessionStorageRequired
	ErrHTTPAdapterRequired    = core.ErrHTTPAdapterRequired
	ErrSecretRequired         = core.ErrSecretRequired
	ErrSecretTooShort         = core.ErrSecretTooShort
)

// Whisper is a wired instance. Auth is the same handler the HTTP adapter
// was registered with.
type Whisper struct {
	Auth      *services.AuthService
	Providers *providers.Registry
	Endpoints []*core.Endpoint
	Cache     core.Cache
}

func New(config Config) (*Whisper, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}

	sessionStorage := config.Sessions
	if sessionStorage == nil {
		s, ok := config.Database.(core.SessionStorage)
		if !ok {
			return nil, ErrSessionStorageRequired
		}
		sessionStorage = s
	}

	// Set Defaults

	var cacheAdapter core.Cache
	switch {
	case config.DisableCache:
	case config.CacheAdapter != nil:
		cacheAdapter = config.CacheAdapter
	default:
		cacheAdapter = NewLRUCache(CacheConfig{
			TTL:     defaultCacheTTL,
			MaxSize: defaultCacheSize,
		})
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = crypto.NewArgon2()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := providers.NewRegistry(config.Providers...)
	if err != nil {
		return nil, err
	}
	state := providers.NewStateSigner(config.Secret, providers.DefaultStateTTL)

	identities := services.NewIdentityStore(config.Database, passwordHasher, logger)
	sessions := services.NewSessionManager(sessionConfig, sessionStorage, config.Database, cacheAdapter, logger)

	auth := services.NewAuthService(
		identities,
		services.NewCredentialVerifier(config.Database, passwordHasher),
		services.NewFederatedResolver(registry, state, identities, logger),
		sessions,
		services.NewGuard(sessions, logger),
		services.NewSecretBoard(identities),
		logger,
	)

	endpoints := services.NewEndpointRegistry().Endpoints()
	if err := config.HTTP.RegisterRoutes(auth, endpoints); err != nil {
		return nil, err
	}

	logger.Info("whisper ready",
		slog.Any("providers", registry.Names()),
		slog.Int("endpoints", len(endpoints)),
		slog.Bool("cache", cacheAdapter != nil),
	)

	return &Whisper{
		Auth:      auth,
		Providers: registry,
		Endpoints: endpoints,
		Cache:     cacheAdapter,
	}, nil
}
