package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lborres/whisper/core"
)

const localsToken = "whisper.token"

// requireAuth runs the access guard. Callers without a live session are
// redirected to the login path before any handler runs.
func (a *Adapter) requireAuth(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := extractToken(c, a.opts.CookieName)

		if _, err := h.Authorize(c.Context(), token); err != nil {
			return a.toLogin(c)
		}

		// Downstream handlers act on the token the guard accepted
		c.Locals(localsToken, token)

		return c.Next()
	}
}

func (a *Adapter) toLogin(c fiber.Ctx) error {
	return c.Redirect().Status(fiber.StatusSeeOther).To(a.opts.LoginPath)
}

func currentToken(c fiber.Ctx) string {
	token, _ := c.Locals(localsToken).(string)
	return token
}
