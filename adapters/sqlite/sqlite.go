// Package sqlite stores accounts and sessions in a SQLite database.
//
// The handle is limited to one connection, so every statement and
// transaction is serialized.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/lborres/whisper/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Memory is the path of a private in-memory database
const Memory = ":memory:"

type Adapter struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.StorageAdapter = (*Adapter)(nil)

// Open opens the database at dbPath, creating parent directories as needed,
// and migrates it to the current schema
func Open(ctx context.Context, logger *slog.Logger, dbPath string) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("sqlite path is required")
	}

	if dbPath != Memory {
		if _, err := os.Stat(dbPath); err != nil {
			const userOnlyDirPerms = 0o700
			if err = os.MkdirAll(filepath.Dir(dbPath), userOnlyDirPerms); err != nil {
				return nil, fmt.Errorf("failed to create db parent directory: %w", err)
			}
		}
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != Memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB handler: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &Adapter{db: db, now: time.Now}
	if err := a.migrate(ctx, logger.With(slog.String("db", dbPath))); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Adapter) migrate(ctx context.Context, logger *slog.Logger) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, a.db, sub)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	for _, r := range results {
		logger.DebugContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration),
		)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func constraintCode(err error) int {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	switch constraintCode(err) {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

// withTx runs fn in a transaction, committing only when fn succeeds
func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
