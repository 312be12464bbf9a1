// Package fiber serves whisper over a gofiber/fiber v3 app.
package fiber

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/services"
)

const (
	DefaultCookieName      = "whisper_session"
	DefaultStateCookieName = "whisper_oauth_state"
)

type Options struct {
	CookieName      string
	StateCookieName string
	// Secure marks cookies HTTPS-only
	CookieSecure bool
	LoginPath    string // where unauthenticated callers are sent
	HomePath     string // where logout lands
	SecretsPath  string // where a finished provider login lands
	Logger       *slog.Logger
}

func (o *Options) setDefaults() {
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.StateCookieName == "" {
		o.StateCookieName = DefaultStateCookieName
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.HomePath == "" {
		o.HomePath = "/"
	}
	if o.SecretsPath == "" {
		o.SecretsPath = "/secrets"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// stateCookieMaxAge matches the lifetime of a signed oauth state
const stateCookieMaxAge = 10 * time.Minute

type Adapter struct {
	app  *fiber.App
	opts Options
}

var _ core.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App, opts Options) *Adapter {
	opts.setDefaults()
	return &Adapter{app: app, opts: opts}
}

// RegisterRoutes mounts one route per endpoint. Protected endpoints run
// behind the access guard. Unknown operation ids fail registration.
func (a *Adapter) RegisterRoutes(handler core.AuthHandler, endpoints []*core.Endpoint) error {
	handlers := a.handlers(handler)
	guard := a.requireAuth(handler)

	for _, ep := range endpoints {
		h, ok := handlers[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("no handler for operation %q (%s %s)", ep.Metadata.OperationID, ep.Method, ep.Path)
		}

		if ep.Protected {
			a.app.Add([]string{ep.Method}, ep.Path, guard, h)
		} else {
			a.app.Add([]string{ep.Method}, ep.Path, h)
		}
	}

	return nil
}

func (a *Adapter) handlers(h core.AuthHandler) map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpRegister:          a.register(h),
		services.OpLogin:             a.login(h),
		services.OpLogout:            a.logout(h),
		services.OpLogoutLink:        a.logout(h),
		services.OpStartOAuth:        a.startOAuth(h),
		services.OpCompleteOAuth:     a.completeOAuth(h),
		services.OpGetSession:        a.session(h),
		services.OpListPublicSecrets: a.listPublicSecrets(h),
		services.OpOwnSecrets:        a.ownSecrets(h),
		services.OpAddSecret:         a.addSecret(h),
		services.OpRemoveSecret:      a.removeSecret(h),
	}
}
