package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lborres/whisper/core"
)

const accountColumns = `a.id, a.username, a.password_hash, a.display_name, a.created_at, a.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(row rowScanner, extra ...any) (*core.Account, error) {
	acc := &core.Account{}
	var username, passwordHash sql.NullString
	var createdAt, updatedAt int64

	dest := append([]any{&acc.ID, &username, &passwordHash, &acc.DisplayName, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, err
	}

	if username.Valid {
		acc.Username = &username.String
	}
	if passwordHash.Valid {
		acc.PasswordHash = &passwordHash.String
	}
	acc.CreatedAt = fromMillis(createdAt)
	acc.UpdatedAt = fromMillis(updatedAt)
	acc.Secrets = []string{}
	return acc, nil
}

// loadAccount reads one account and its children. Each query is drained
// before the next starts since the handle has a single connection.
func (a *Adapter) loadAccount(ctx context.Context, where string, args ...any) (*core.Account, error) {
	acc, err := scanAccountRow(a.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a `+where, args...))
	if err != nil {
		return nil, err
	}
	if acc.Secrets, err = a.loadSecrets(ctx, acc.ID); err != nil {
		return nil, err
	}
	if acc.FederatedIdentities, err = a.loadIdentities(ctx, acc.ID); err != nil {
		return nil, err
	}
	return acc, nil
}

func (a *Adapter) loadSecrets(ctx context.Context, accountID string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT body FROM secrets WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	secrets := []string{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		secrets = append(secrets, body)
	}
	return secrets, rows.Err()
}

func (a *Adapter) loadIdentities(ctx context.Context, accountID string) (map[string]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT provider, subject FROM federated_identities WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities map[string]string
	for rows.Next() {
		var provider, subject string
		if err := rows.Scan(&provider, &subject); err != nil {
			return nil, err
		}
		if identities == nil {
			identities = make(map[string]string)
		}
		identities[provider] = subject
	}
	return identities, rows.Err()
}

func (a *Adapter) CreateLocalAccount(ctx context.Context, acc *core.Account) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.DisplayName, toMillis(acc.CreatedAt), toMillis(acc.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateUsername
		}
		return err
	}
	return nil
}

func (a *Adapter) CreateFederatedAccount(ctx context.Context, acc *core.Account, provider, subject string) error {
	err := a.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			acc.ID, acc.DisplayName, toMillis(acc.CreatedAt), toMillis(acc.UpdatedAt),
		)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO federated_identities (provider, subject, account_id) VALUES (?, ?, ?)`,
			provider, subject, acc.ID,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrFederatedIdentityExists
		}
		return err
	}
	return nil
}

func (a *Adapter) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	return a.loadAccount(ctx, `WHERE a.id = ?`, id)
}

func (a *Adapter) GetAccountByUsername(ctx context.Context, username string) (*core.Account, error) {
	return a.loadAccount(ctx, `WHERE a.username = ?`, username)
}

func (a *Adapter) GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (*core.Account, error) {
	return a.loadAccount(ctx,
		`JOIN federated_identities fi ON fi.account_id = a.id WHERE fi.provider = ? AND fi.subject = ?`,
		provider, subject,
	)
}

func (a *Adapter) AppendSecret(ctx context.Context, accountID, text string) error {
	now := toMillis(a.now())
	return a.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET updated_at = ? WHERE id = ?`, now, accountID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrAccountNotFound
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO secrets (account_id, body, created_at) VALUES (?, ?, ?)`,
			accountID, text, now,
		)
		if isForeignKeyViolation(err) {
			return core.ErrAccountNotFound
		}
		return err
	})
}

func (a *Adapter) RemoveSecret(ctx context.Context, accountID, text string) error {
	return a.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = ?`, accountID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrAccountNotFound
			}
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM secrets WHERE id = (
			     SELECT id FROM secrets WHERE account_id = ? AND body = ? ORDER BY id LIMIT 1
			 )`,
			accountID, text,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `UPDATE accounts SET updated_at = ? WHERE id = ?`, toMillis(a.now()), accountID)
		return err
	})
}

// ListAccountsWithSecrets returns accounts in order of their oldest secret
func (a *Adapter) ListAccountsWithSecrets(ctx context.Context) ([]*core.Account, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+accountColumns+`, s.body
		 FROM secrets s JOIN accounts a ON a.id = s.account_id
		 ORDER BY s.id`,
	)
	if err != nil {
		return nil, err
	}

	var accounts []*core.Account
	byID := make(map[string]*core.Account)
	for rows.Next() {
		var body string
		acc, err := scanAccountRow(rows, &body)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if seen, ok := byID[acc.ID]; ok {
			seen.Secrets = append(seen.Secrets, body)
			continue
		}
		acc.Secrets = append(acc.Secrets, body)
		byID[acc.ID] = acc
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, acc := range accounts {
		if acc.FederatedIdentities, err = a.loadIdentities(ctx, acc.ID); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}
