package core

import "errors"

// Authentication Related Errors
var (
	ErrDuplicateUsername  = errors.New("username already taken")           // 409 Conflict
	ErrInvalidCredentials = errors.New("invalid username or password")     // 401 Unauthorized
	ErrProviderProtocol   = errors.New("sign-in with provider failed")     // 502, details are logged only
	ErrDenied             = errors.New("sign-in was declined at provider") // flow outcome, not a fault
)

// Session errors
var (
	ErrUnknownOrExpiredSession = errors.New("unknown or expired session") // 401
	ErrUnauthenticated         = errors.New("authentication required")    // redirect to login
	ErrSessionNotFound         = errors.New("session not found")
	ErrCacheNotFound           = errors.New("session not found in cache")
)

// Storage errors
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrFederatedIdentityExists = errors.New("federated identity already linked")
)

// Validation errors (client input)
var (
	ErrUsernameRequired = errors.New("username is required")           // 400
	ErrPasswordRequired = errors.New("password is required")           // 400
	ErrPasswordTooLong  = errors.New("password is too long")           // 400
	ErrEmptySecret      = errors.New("secret text is required")        // 400
	ErrUnknownProvider  = errors.New("unknown identity provider")      // 404
	ErrInvalidState     = errors.New("invalid or expired oauth state") // 400
)

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired      = errors.New("database adapter is required")        // 500
	ErrSessionStorageRequired = errors.New("session storage adapter is required") // 500
	ErrHTTPAdapterRequired    = errors.New("adapter is required")                 // 500
	ErrSecretRequired         = errors.New("secret is required")                  // 500
	ErrSecretTooShort         = errors.New("secret too short")                    // 500
)
