package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/pkg/crypto"
)

// SessionManager binds accounts to opaque session tokens. Only the account id
// is recorded; the account itself is re-read on every resolve.
type SessionManager struct {
	config   core.SessionConfig
	storage  core.SessionStorage
	accounts core.AccountStorage
	cache    core.Cache // optional, can be nil if caching is disabled
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, accounts core.AccountStorage, cache core.Cache, logger *slog.Logger) *SessionManager {
	if config.MaxAge <= 0 {
		config = core.DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		config:   config,
		storage:  storage,
		accounts: accounts,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue creates a session for account and returns the raw token once
func (sm *SessionManager) Issue(ctx context.Context, account *core.Account) (*core.CreateSessionResult, error) {
	if account == nil || account.ID == "" {
		return nil, core.ErrAccountNotFound
	}

	// Generate cryptographic material
	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := sm.now().UTC()
	session := &core.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: pair.Hash,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.config.MaxAge),
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if sm.cache != nil {
		// We don't fail the request if caching fails
		_ = sm.cache.Set(pair.Hash, session)
	}

	return &core.CreateSessionResult{Session: session, Token: pair.Token}, nil
}

// Resolve returns the session and the account as it is stored right now.
// Unknown, expired and orphaned sessions all fail with ErrUnknownOrExpiredSession.
func (sm *SessionManager) Resolve(ctx context.Context, token string) (*core.SessionData, error) {
	if token == "" {
		return nil, core.ErrUnknownOrExpiredSession
	}
	tokenHash := crypto.HashToken(token)

	session, err := sm.lookup(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyToken(token, session.TokenHash) {
		return nil, core.ErrUnknownOrExpiredSession
	}

	if session.Expired(sm.now()) {
		sm.drop(ctx, tokenHash)
		return nil, core.ErrUnknownOrExpiredSession
	}

	account, err := sm.accounts.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			sm.drop(ctx, tokenHash)
			return nil, core.ErrUnknownOrExpiredSession
		}
		return nil, fmt.Errorf("failed to load session account: %w", err)
	}

	return &core.SessionData{Account: account, Session: session}, nil
}

func (sm *SessionManager) lookup(ctx context.Context, tokenHash string) (*core.Session, error) {
	// Try cache first if caching is enabled
	if sm.cache != nil {
		if session, err := sm.cache.Get(tokenHash); err == nil {
			// Another process may have revoked it since it was cached
			exists, err := sm.storage.SessionExists(ctx, tokenHash)
			if err != nil {
				return nil, fmt.Errorf("failed to check session: %w", err)
			}
			if !exists {
				_ = sm.cache.Delete(tokenHash)
				return nil, core.ErrUnknownOrExpiredSession
			}
			return session, nil
		}
	}

	session, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrUnknownOrExpiredSession
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, core.ErrUnknownOrExpiredSession
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, session)
	}
	return session, nil
}

func (sm *SessionManager) drop(ctx context.Context, tokenHash string) {
	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}
	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		sm.logger.WarnContext(ctx, "failed to delete dead session", slog.Any("error", err))
	}
}

// Revoke invalidates token immediately. Revoking an unknown token is not an error.
func (sm *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := crypto.HashToken(token)

	// Cache goes first so a concurrent resolve can't repopulate from a stale hit
	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}
	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session of an account
func (sm *SessionManager) RevokeAll(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, core.ErrAccountNotFound
	}

	count, err := sm.storage.DeleteAccountSessions(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete account sessions: %w", err)
	}

	// The cache is keyed by token hash, so without listing the sessions
	// first the only safe invalidation is a full clear
	if sm.cache != nil && count > 0 {
		_ = sm.cache.Clear()
	}

	return count, nil
}

// Sweep removes expired sessions from storage
func (sm *SessionManager) Sweep(ctx context.Context) (int, error) {
	count, err := sm.storage.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	if count > 0 {
		sm.logger.InfoContext(ctx, "expired sessions swept", slog.Int("count", count))
	}
	return count, nil
}
