package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"groupbuy-backend/internal/auth"
)

// demo identity used when no JWT secret is configured
const demoUserID = "demo-user-001"

// AuthMiddleware resolves the caller's identity into the "user_id" context
// key. With a JWT manager it requires a Bearer token; without one every
// request runs as the demo user.
func AuthMiddleware(jwtManager *auth.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if jwtManager == nil {
				c.Set("user_id", demoUserID)
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims, err := jwtManager.Validate(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user_id", claims.UserID)
			return next(c)
		}
	}
}
