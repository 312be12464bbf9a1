package fiber

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/whisper/core"
)

type secretInput struct {
	Secret string `json:"secret" form:"secret"`
}

type secretsResponse struct {
	Secrets []string `json:"secrets"`
}

type publicSecretsResponse struct {
	Secrets []core.PublicSecret `json:"secrets"`
}

func (a *Adapter) register(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.RegisterInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		result, err := h.Register(c.Context(), input)
		if err != nil {
			return a.handleAuthError(c, err)
		}

		a.setSessionCookie(c, result)
		return c.Status(http.StatusCreated).JSON(result)
	}
}

func (a *Adapter) login(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.LoginInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		result, err := h.Login(c.Context(), input)
		if err != nil {
			return a.handleAuthError(c, err)
		}

		a.setSessionCookie(c, result)
		return c.Status(http.StatusOK).JSON(result)
	}
}

// logout never fails for the caller; a missing session is already logged out
func (a *Adapter) logout(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token := extractToken(c, a.opts.CookieName); token != "" {
			if err := h.Logout(c.Context(), token); err != nil {
				a.opts.Logger.WarnContext(c.Context(), "logout failed", slog.Any("error", err))
			}
		}

		a.expireCookie(c, a.opts.CookieName, "/")
		return c.Redirect().Status(fiber.StatusSeeOther).To(a.opts.HomePath)
	}
}

func (a *Adapter) startOAuth(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		flow, err := h.StartOAuth(c.Params("provider"))
		if err != nil {
			return a.handleAuthError(c, err)
		}

		c.Cookie(&fiber.Cookie{
			Name:     a.opts.StateCookieName,
			Value:    flow.StateToken,
			Path:     "/auth",
			MaxAge:   int(stateCookieMaxAge.Seconds()),
			HTTPOnly: true,
			Secure:   a.opts.CookieSecure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.Redirect().Status(fiber.StatusFound).To(flow.RedirectURL)
	}
}

// completeOAuth lands finished provider logins on the secrets page and sends
// denied or failed ones back to login without provider detail
func (a *Adapter) completeOAuth(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var params core.CallbackParams
		if err := c.Bind().Query(&params); err != nil {
			return badBody(c)
		}
		expected := c.Cookies(a.opts.StateCookieName)
		a.expireCookie(c, a.opts.StateCookieName, "/auth")

		result, err := h.CompleteOAuth(c.Context(), c.Params("provider"), params, expected)
		switch {
		case err == nil:
			a.setSessionCookie(c, result)
			return c.Redirect().Status(fiber.StatusSeeOther).To(a.opts.SecretsPath)
		case errors.Is(err, core.ErrDenied), errors.Is(err, core.ErrProviderProtocol):
			return a.toLogin(c)
		default:
			return a.handleAuthError(c, err)
		}
	}
}

func (a *Adapter) session(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		data, err := h.GetSession(c.Context(), currentToken(c))
		if err != nil {
			return a.handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(data)
	}
}

func (a *Adapter) listPublicSecrets(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		secrets, err := h.ListPublicSecrets(c.Context(), currentToken(c))
		if err != nil {
			return a.handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(publicSecretsResponse{Secrets: secrets})
	}
}

func (a *Adapter) ownSecrets(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		secrets, err := h.OwnSecrets(c.Context(), currentToken(c))
		if err != nil {
			return a.handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(secretsResponse{Secrets: secrets})
	}
}

func (a *Adapter) addSecret(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input secretInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		secrets, err := h.AddSecret(c.Context(), currentToken(c), input.Secret)
		if err != nil {
			return a.handleAuthError(c, err)
		}
		return c.Status(http.StatusCreated).JSON(secretsResponse{Secrets: secrets})
	}
}

func (a *Adapter) removeSecret(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input secretInput
		if err := c.Bind().Body(&input); err != nil {
			return badBody(c)
		}

		secrets, err := h.RemoveSecret(c.Context(), currentToken(c), input.Secret)
		if err != nil {
			return a.handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(secretsResponse{Secrets: secrets})
	}
}

func (a *Adapter) setSessionCookie(c fiber.Ctx, result *core.AuthResult) {
	c.Cookie(&fiber.Cookie{
		Name:     a.opts.CookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		HTTPOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *Adapter) expireCookie(c fiber.Ctx, name, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Path:     path,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// extractToken extracts the session token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func extractToken(c fiber.Ctx, cookieName string) string {
	// Try Bearer token first
	authHeader := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
		return token
	}

	// Fall back to cookie
	return c.Cookies(cookieName)
}

func badBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(core.ErrorResponse{
		Error: "invalid request body",
	})
}

// handleAuthError maps service errors to HTTP responses. A session that dies
// mid-request is treated like a guard failure.
func (a *Adapter) handleAuthError(c fiber.Ctx, err error) error {
	if errors.Is(err, core.ErrUnauthenticated) {
		return a.toLogin(c)
	}

	status := mapErrorToStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		a.opts.Logger.ErrorContext(c.Context(), "request failed",
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
		message = http.StatusText(status)
	}

	return c.Status(status).JSON(core.ErrorResponse{
		Error: message,
	})
}

// mapErrorToStatus maps whisper error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrUnknownOrExpiredSession),
		errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrDuplicateUsername):
		return http.StatusConflict

	case errors.Is(err, core.ErrUsernameRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrPasswordTooLong),
		errors.Is(err, core.ErrEmptySecret),
		errors.Is(err, core.ErrInvalidState):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrUnknownProvider):
		return http.StatusNotFound

	case errors.Is(err, core.ErrProviderProtocol):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
