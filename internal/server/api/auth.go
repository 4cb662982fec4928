package api

import (
	"net/http"
	"strings"

	"cloudprime/internal/server/database"
	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

const (
	tokenCookie = "token"

	ctxUser    = "user"
	ctxKeyAuth = "keyAuth"

	headerAPIKey = "X-API-Key"
)

// sessionToken looks for the session token in the Authorization header,
// then the token cookie, then the token query parameter.
func sessionToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer") {
		if parts := strings.Fields(h); len(parts) == 2 {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.QueryParam("token")
}

// RequireSession resolves the session token to a verified user.
func (h *Handler) RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := h.identity.Authenticate(c.Request().Context(), sessionToken(c))
			if err != nil {
				return respondError(c, err)
			}
			c.Set(ctxUser, user)
			return next(c)
		}
	}
}

// RequireRole admits only users holding one of roles. It must run after
// RequireSession.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := currentUser(c)
			if user == nil {
				return respondError(c, service.ErrNotAuthenticated)
			}
			for _, r := range roles {
				if user.Role == r {
					return next(c)
				}
			}
			return respondFail(c, http.StatusForbidden, "user role "+user.Role+" is not authorized to access this route")
		}
	}
}

// RequireAPIKey authenticates the request by the X-API-Key header or the
// apiKey query parameter.
func (h *Handler) RequireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ka, err := h.keys.Authenticate(c.Request().Context(), apiKeyFrom(c))
			if err != nil {
				return respondError(c, err)
			}
			c.Set(ctxKeyAuth, ka)
			c.Set(ctxUser, ka.User)
			return next(c)
		}
	}
}

func apiKeyFrom(c echo.Context) string {
	if k := c.Request().Header.Get(headerAPIKey); k != "" {
		return k
	}
	return c.QueryParam("apiKey")
}

func currentUser(c echo.Context) *database.User {
	u, _ := c.Get(ctxUser).(*database.User)
	return u
}

func currentKey(c echo.Context) *service.KeyAuth {
	ka, _ := c.Get(ctxKeyAuth).(*service.KeyAuth)
	return ka
}
