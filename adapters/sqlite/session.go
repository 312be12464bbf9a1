package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lborres/whisper/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.AccountID, session.TokenHash, toMillis(session.ExpiresAt), toMillis(session.CreatedAt),
	)
	if isForeignKeyViolation(err) {
		return core.ErrAccountNotFound
	}
	return err
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	s := &core.Session{}
	var expiresAt, createdAt int64
	err := a.db.QueryRowContext(ctx,
		`SELECT id, account_id, token_hash, expires_at, created_at FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).Scan(&s.ID, &s.AccountID, &s.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (a *Adapter) SessionExists(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE token_hash = ?)`, tokenHash,
	).Scan(&exists)
	return exists, err
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	return err
}

func (a *Adapter) DeleteAccountSessions(ctx context.Context, accountID string) (int, error) {
	return a.deleteSessions(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID)
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return a.deleteSessions(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(a.now()))
}

func (a *Adapter) deleteSessions(ctx context.Context, query string, args ...any) (int, error) {
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
