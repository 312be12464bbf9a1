package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lborres/whisper"
	fiberadapter "github.com/lborres/whisper/adapters/fiber"
	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/internal/config"
	"github.com/lborres/whisper/providers"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the whisper HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			st, err := openStack(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			app := newApp()
			w, err := whisper.New(whisper.Config{
				Secret:   cfg.Secret,
				Database: st.accounts,
				Sessions: st.sessions,
				HTTP: fiberadapter.New(app, fiberadapter.Options{
					CookieSecure: cfg.CookieSecure,
					Logger:       log,
				}),
				Providers: enabledProviders(cfg),
				CacheAdapter: whisper.NewLRUCache(whisper.CacheConfig{
					TTL:     cfg.CacheTTL,
					MaxSize: cfg.CacheSize,
				}),
				SessionConfig: &whisper.SessionConfig{MaxAge: cfg.SessionMaxAge},
				Logger:        log,
			})
			if err != nil {
				return err
			}

			grp, ctx := errgroup.WithContext(cmd.Context())
			serveHTTP(ctx, grp, cfg, log, app)
			sweepLoop(ctx, grp, cfg.SweepInterval, log, w)
			return grp.Wait()
		},
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "whisper"})
	app.Use(
		recoverer.New(),
		requestid.New(),
		logger.New(logger.Config{
			Format:     logFormat(),
			TimeFormat: "2006/01/02 15:04:05",
			TimeZone:   "Local",
		}),
	)
	return app
}

func logFormat() string {
	format := []string{
		// Timestamp & Request ID
		"${time}|${requestid}",

		// Response metadata
		"${status}|${latency}",

		// Client info
		"${ip}:${port}",

		// Transfer size
		"${bytesReceived}|${bytesSent}",

		// Request details
		"${method}|${path}",

		// errors
		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

// enabledProviders returns the providers whose client registration is complete
func enabledProviders(cfg *config.Config) []core.OAuthProvider {
	var ps []core.OAuthProvider
	if google := cfg.Google(); google.Enabled() {
		ps = append(ps, providers.Google(google))
	}
	if facebook := cfg.Facebook(); facebook.Enabled() {
		ps = append(ps, providers.Facebook(facebook))
	}
	return ps
}

func serveHTTP(ctx context.Context, grp *errgroup.Group, cfg *config.Config, log *slog.Logger, app *fiber.App) {
	log.InfoContext(ctx,
		"starting HTTP server...",
		slog.String("address", cfg.Addr),
		slog.String("base_url", cfg.BaseURL),
	)

	grp.Go(func() error {
		return app.Listen(cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	})
	grp.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down HTTP server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
}

// sweepLoop deletes expired sessions every interval until ctx ends
func sweepLoop(ctx context.Context, grp *errgroup.Group, interval time.Duration, log *slog.Logger, w *whisper.Whisper) {
	if interval <= 0 {
		return
	}

	grp.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := w.Auth.Sweep(ctx); err != nil && ctx.Err() == nil {
					log.WarnContext(ctx, "session sweep failed", slog.Any("error", err))
				}
			}
		}
	})
}
