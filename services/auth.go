package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lborres/whisper/core"
)

// maxPasswordLength bounds the work a single login can cost
const maxPasswordLength = 256

// AuthService is the entry point adapters talk to. Every way of proving an
// identity ends in an AuthOutcome that establish turns into a session.
type AuthService struct {
	identities *IdentityStore
	verifier   *CredentialVerifier
	resolver   *FederatedResolver
	sessions   *SessionManager
	guard      *Guard
	board      *SecretBoard
	logger     *slog.Logger
}

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

func NewAuthService(
	identities *IdentityStore,
	verifier *CredentialVerifier,
	resolver *FederatedResolver,
	sessions *SessionManager,
	guard *Guard,
	board *SecretBoard,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		identities: identities,
		verifier:   verifier,
		resolver:   resolver,
		sessions:   sessions,
		guard:      guard,
		board:      board,
		logger:     logger,
	}
}

// Register creates a local account and signs it in
func (s *AuthService) Register(ctx context.Context, input core.RegisterInput) (*core.AuthResult, error) {
	username, err := validateCredentials(input.Username, input.Password)
	if err != nil {
		return nil, err
	}

	account, err := s.identities.CreateLocal(ctx, username, input.Password)
	if err != nil {
		return s.establish(ctx, core.FailureOutcome(err))
	}
	return s.establish(ctx, core.LocalOutcome(account))
}

// Login verifies a username/password pair in a single step
func (s *AuthService) Login(ctx context.Context, input core.LoginInput) (*core.AuthResult, error) {
	username, err := validateCredentials(input.Username, input.Password)
	if err != nil {
		return nil, err
	}

	account, err := s.verifier.Verify(ctx, username, input.Password)
	if err != nil {
		return s.establish(ctx, core.FailureOutcome(err))
	}
	return s.establish(ctx, core.LocalOutcome(account))
}

func (s *AuthService) StartOAuth(provider string) (*core.OAuthFlow, error) {
	return s.resolver.Start(provider)
}

// CompleteOAuth finishes a provider login. Result.Kind is OutcomeFederated on success.
func (s *AuthService) CompleteOAuth(ctx context.Context, provider string, params core.CallbackParams, expectedState string) (*core.AuthResult, error) {
	flow, err := s.resolver.Complete(ctx, provider, params, expectedState)
	if err != nil {
		return s.establish(ctx, core.FailureOutcome(err))
	}
	return s.establish(ctx, core.FederatedOutcome(flow.Provider, flow.Account))
}

// Logout revokes the session behind token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func (s *AuthService) Authorize(ctx context.Context, token string) (*core.Account, error) {
	return s.guard.Authorize(ctx, token)
}

// GetSession retrieves session data by token
func (s *AuthService) GetSession(ctx context.Context, token string) (*core.SessionData, error) {
	return s.sessions.Resolve(ctx, token)
}

func (s *AuthService) ListPublicSecrets(ctx context.Context, token string) ([]core.PublicSecret, error) {
	caller, err := s.guard.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.board.ListPublic(ctx, caller)
}

func (s *AuthService) OwnSecrets(ctx context.Context, token string) ([]string, error) {
	caller, err := s.guard.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.board.Own(ctx, caller)
}

func (s *AuthService) AddSecret(ctx context.Context, token, text string) ([]string, error) {
	caller, err := s.guard.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.board.Add(ctx, caller, text)
}

func (s *AuthService) RemoveSecret(ctx context.Context, token, text string) ([]string, error) {
	caller, err := s.guard.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.board.Remove(ctx, caller, text)
}

// RevokeAll signs an account out everywhere
func (s *AuthService) RevokeAll(ctx context.Context, accountID string) (int, error) {
	return s.sessions.RevokeAll(ctx, accountID)
}

// Sweep deletes expired sessions
func (s *AuthService) Sweep(ctx context.Context) (int, error) {
	return s.sessions.Sweep(ctx)
}

func (s *AuthService) establish(ctx context.Context, outcome core.AuthOutcome) (*core.AuthResult, error) {
	switch outcome.Kind {
	case core.OutcomeLocal, core.OutcomeFederated:
		issued, err := s.sessions.Issue(ctx, outcome.Account)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		s.logger.DebugContext(ctx, "session established",
			slog.String("account_id", outcome.Account.ID),
			slog.String("kind", outcome.Kind.String()),
		)
		return &core.AuthResult{
			Account: outcome.Account,
			Session: issued.Session,
			Token:   issued.Token,
			Kind:    outcome.Kind,
		}, nil
	default:
		if outcome.Err == nil {
			return nil, core.ErrUnauthenticated
		}
		return nil, outcome.Err
	}
}

// validateCredentials returns the username as stored. Surrounding
// whitespace is dropped so register and login agree on it.
func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", core.ErrUsernameRequired
	}
	if password == "" {
		return "", core.ErrPasswordRequired
	}
	if len(password) > maxPasswordLength {
		return "", core.ErrPasswordTooLong
	}
	return username, nil
}
