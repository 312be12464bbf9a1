package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	pgxadapter "github.com/lborres/whisper/adapters/pgx"
	redisadapter "github.com/lborres/whisper/adapters/redis"
	"github.com/lborres/whisper/adapters/sqlite"
	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/internal/config"
)

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown-dev"
	}
	ver := "unknown"
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			ver = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if dirty {
		ver += "-dev"
	}
	return ver
}

// stack is the opened storage for one command run
type stack struct {
	accounts core.StorageAdapter
	// sessions is redis when configured, otherwise accounts
	sessions core.SessionStorage
	closers  []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig(ctx context.Context) (*config.Config, *slog.Logger, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, nil, errors.New("configuration resolution failed")
	}
	return cfg, slog.Default(), nil
}

// openStack opens the configured database, applying migrations, and the
// optional redis session store
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	st := &stack{}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := pgxadapter.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() error { db.Close(); return nil })
		if err := db.Migrate(ctx, logger); err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.accounts = db
	default:
		db, err := sqlite.Open(ctx, logger, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		st.accounts = db
	}
	st.sessions = st.accounts

	if cfg.RedisURL != "" {
		rdb, err := redisadapter.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("redis sessions: %w", err), st.Close())
		}
		st.closers = append(st.closers, rdb.Close)
		st.sessions = rdb
	}

	logger.InfoContext(ctx, "storage ready",
		slog.String("db_driver", cfg.DBDriver),
		slog.Bool("redis_sessions", cfg.RedisURL != ""),
	)
	return st, nil
}
