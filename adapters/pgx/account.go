package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/whisper/core"
)

// accountColumns selects an account with its secrets and federated identities
// aggregated in stable order
const accountColumns = `
	a.id, a.username, a.password_hash, a.display_name, a.created_at, a.updated_at,
	COALESCE((SELECT array_agg(s.body ORDER BY s.id) FROM secrets s WHERE s.account_id = a.id), '{}'),
	COALESCE((SELECT array_agg(f.provider ORDER BY f.provider) FROM federated_identities f WHERE f.account_id = a.id), '{}'),
	COALESCE((SELECT array_agg(f.subject ORDER BY f.provider) FROM federated_identities f WHERE f.account_id = a.id), '{}')`

func scanAccount(row pgx.Row) (*core.Account, error) {
	acc := &core.Account{}
	var providers, subjects []string
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.PasswordHash, &acc.DisplayName, &acc.CreatedAt, &acc.UpdatedAt,
		&acc.Secrets, &providers, &subjects,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, err
	}

	if len(providers) > 0 {
		acc.FederatedIdentities = make(map[string]string, len(providers))
		for i, p := range providers {
			acc.FederatedIdentities[p] = subjects[i]
		}
	}
	if acc.Secrets == nil {
		acc.Secrets = []string{}
	}
	return acc, nil
}

func (a *Adapter) CreateLocalAccount(ctx context.Context, acc *core.Account) error {
	query := `INSERT INTO accounts (id, username, password_hash, display_name, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := a.pool.Exec(ctx, query,
		acc.ID, acc.Username, acc.PasswordHash, acc.DisplayName, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == uniqueViolation {
			return core.ErrDuplicateUsername
		}
		return err
	}
	return nil
}

// CreateFederatedAccount inserts the account and its identity link in one
// transaction. The (provider, subject) primary key decides concurrent races.
func (a *Adapter) CreateFederatedAccount(ctx context.Context, acc *core.Account, provider, subject string) error {
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, display_name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			acc.ID, acc.DisplayName, acc.CreatedAt, acc.UpdatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO federated_identities (provider, subject, account_id) VALUES ($1, $2, $3)`,
			provider, subject, acc.ID,
		)
		return err
	})
	if err != nil {
		if pgErrorCode(err) == uniqueViolation {
			return core.ErrFederatedIdentityExists
		}
		return err
	}
	return nil
}

func (a *Adapter) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1`
	return scanAccount(a.pool.QueryRow(ctx, query, id))
}

func (a *Adapter) GetAccountByUsername(ctx context.Context, username string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.username = $1`
	return scanAccount(a.pool.QueryRow(ctx, query, username))
}

func (a *Adapter) GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + `
	          FROM accounts a
	          JOIN federated_identities fi ON fi.account_id = a.id
	          WHERE fi.provider = $1 AND fi.subject = $2`
	return scanAccount(a.pool.QueryRow(ctx, query, provider, subject))
}

// AppendSecret is a single statement; touching the account row serializes it
// with RemoveSecret on the same account
func (a *Adapter) AppendSecret(ctx context.Context, accountID, text string) error {
	query := `WITH touched AS (
	              UPDATE accounts SET updated_at = now() WHERE id = $1 RETURNING id
	          )
	          INSERT INTO secrets (account_id, body) SELECT id, $2 FROM touched`

	tag, err := a.pool.Exec(ctx, query, accountID, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

// RemoveSecret deletes the oldest secret equal to text while holding the
// account row lock
func (a *Adapter) RemoveSecret(ctx context.Context, accountID, text string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return core.ErrAccountNotFound
			}
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM secrets WHERE id = (
			     SELECT id FROM secrets WHERE account_id = $1 AND body = $2 ORDER BY id LIMIT 1
			 )`,
			accountID, text,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `UPDATE accounts SET updated_at = now() WHERE id = $1`, accountID)
		return err
	})
}

// ListAccountsWithSecrets returns accounts in order of their oldest secret
func (a *Adapter) ListAccountsWithSecrets(ctx context.Context) ([]*core.Account, error) {
	query := `SELECT ` + accountColumns + `
	          FROM accounts a
	          WHERE EXISTS (SELECT 1 FROM secrets s WHERE s.account_id = a.id)
	          ORDER BY (SELECT min(s.id) FROM secrets s WHERE s.account_id = a.id)`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*core.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}
