package pgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/whisper/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	query := `INSERT INTO sessions (id, account_id, token_hash, expires_at, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := a.pool.Exec(ctx, query,
		session.ID, session.AccountID, session.TokenHash, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == foreignKeyViolation {
			return core.ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	query := `SELECT id, account_id, token_hash, expires_at, created_at
	          FROM sessions WHERE token_hash = $1`

	s := &core.Session{}
	err := a.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (a *Adapter) SessionExists(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE token_hash = $1)`, tokenHash,
	).Scan(&exists)
	return exists, err
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (a *Adapter) DeleteAccountSessions(ctx context.Context, accountID string) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
