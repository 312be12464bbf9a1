package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/pkg/crypto"
)

// IdentityStore owns account creation and the uniqueness/merge rules on top
// of AccountStorage
type IdentityStore struct {
	db             core.AccountStorage
	passwordHasher crypto.PasswordHandler
	logger         *slog.Logger
	now            func() time.Time
}

func NewIdentityStore(db core.AccountStorage, passwordHasher crypto.PasswordHandler, logger *slog.Logger) *IdentityStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityStore{
		db:             db,
		passwordHasher: passwordHasher,
		logger:         logger,
		now:            time.Now,
	}
}

// CreateLocal registers a password account
func (s *IdentityStore) CreateLocal(ctx context.Context, username, rawPassword string) (*core.Account, error) {
	// Step 1: Reject taken usernames early, the insert below is still the arbiter
	existing, err := s.db.GetAccountByUsername(ctx, username)
	if err != nil && !errors.Is(err, core.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, core.ErrDuplicateUsername
	}

	// Step 2: Hash the password
	hashedPassword, err := s.passwordHasher.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Step 3: Insert; a concurrent registration loses on the unique constraint
	now := s.now().UTC()
	account := &core.Account{
		ID:           uuid.NewString(),
		Username:     &username,
		PasswordHash: &hashedPassword,
		DisplayName:  username,
		Secrets:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateLocalAccount(ctx, account); err != nil {
		if errors.Is(err, core.ErrDuplicateUsername) {
			return nil, core.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.InfoContext(ctx, "local account created", slog.String("account_id", account.ID))
	return account, nil
}

func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*core.Account, error) {
	return s.db.GetAccountByUsername(ctx, username)
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*core.Account, error) {
	return s.db.GetAccountByID(ctx, id)
}

// FindOrCreateFederated returns the one account linked to (provider, subject),
// creating it on first sight. Losing an insert race is not an error: the
// winner's account is read back and returned.
func (s *IdentityStore) FindOrCreateFederated(ctx context.Context, provider, subject, displayName string) (*core.Account, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || subject == "" {
		return nil, core.ErrProviderProtocol
	}

	account, err := s.db.GetAccountByFederatedIdentity(ctx, provider, subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to find federated account: %w", err)
	}

	now := s.now().UTC()
	account = &core.Account{
		ID:                  uuid.NewString(),
		DisplayName:         displayName,
		FederatedIdentities: map[string]string{provider: subject},
		Secrets:             []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err = s.db.CreateFederatedAccount(ctx, account, provider, subject)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "federated account created",
			slog.String("account_id", account.ID),
			slog.String("provider", provider),
		)
		return account, nil
	case errors.Is(err, core.ErrFederatedIdentityExists):
		// someone else linked it first
		winner, err := s.db.GetAccountByFederatedIdentity(ctx, provider, subject)
		if err != nil {
			return nil, fmt.Errorf("failed to read federated account after conflict: %w", err)
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("failed to create federated account: %w", err)
	}
}

func (s *IdentityStore) AppendSecret(ctx context.Context, accountID, text string) error {
	if text == "" {
		return core.ErrEmptySecret
	}
	if err := s.db.AppendSecret(ctx, accountID, text); err != nil {
		return fmt.Errorf("failed to append secret: %w", err)
	}
	return nil
}

// RemoveSecret drops the first occurrence of text; absent text is a no-op
func (s *IdentityStore) RemoveSecret(ctx context.Context, accountID, text string) error {
	if err := s.db.RemoveSecret(ctx, accountID, text); err != nil {
		return fmt.Errorf("failed to remove secret: %w", err)
	}
	return nil
}

// ListWithSecrets returns accounts whose secret list is non-empty
func (s *IdentityStore) ListWithSecrets(ctx context.Context) ([]*core.Account, error) {
	accounts, err := s.db.ListAccountsWithSecrets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	out := accounts[:0]
	for _, a := range accounts {
		if len(a.Secrets) > 0 {
			out = append(out, a)
		}
	}
	return out, nil
}
