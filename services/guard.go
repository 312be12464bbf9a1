package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lborres/whisper/core"
)

// Guard gates every secrets operation on a resolvable session
type Guard struct {
	sessions *SessionManager
	logger   *slog.Logger
}

func NewGuard(sessions *SessionManager, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{sessions: sessions, logger: logger}
}

// Authorize returns the caller's current account or ErrUnauthenticated
func (g *Guard) Authorize(ctx context.Context, token string) (*core.Account, error) {
	data, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		if !errors.Is(err, core.ErrUnknownOrExpiredSession) {
			g.logger.WarnContext(ctx, "session resolution failed", slog.Any("error", err))
		}
		return nil, core.ErrUnauthenticated
	}
	return data.Account, nil
}
