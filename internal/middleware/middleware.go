package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenContextKey is the echo context key holding the accepted bearer token.
const TokenContextKey = "token"

// BearerAuth rejects requests whose Authorization header does not carry a
// bearer token accepted by valid. Rejections are 401 with a JSON error body.
func BearerAuth(valid func(token string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(auth, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" || !valid(token) {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="gallery"`)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			c.Set(TokenContextKey, token)
			return next(c)
		}
	}
}

// NoStore marks API responses as uncacheable.
func NoStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Del("Server")

			return next(c)
		}
	}
}
