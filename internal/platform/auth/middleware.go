package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/apperr"
)

// Middleware validates the bearer token, checks it against the revocation
// store, and places the Actor on the request context. Failures surface as
// typed errors so the error handler renders the uniform envelope.
func Middleware(minter *Minter, revocations RevocationStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperr.Auth("missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return apperr.Auth("invalid authorization format")
			}

			claims, err := minter.Verify(parts[1])
			if err != nil {
				return apperr.Auth("invalid token")
			}

			ctx := c.Request().Context()
			revoked, err := revocations.IsRevoked(ctx, claims.ID)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authorization unavailable")
			}
			if revoked {
				return apperr.Auth("token revoked")
			}

			actor, err := ActorFromClaims(claims)
			if err != nil {
				return apperr.Auth("invalid token")
			}

			c.Set("jti", claims.ID)
			c.Set("token_expires_at", claims.ExpiresAt.Time)
			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			return next(c)
		}
	}
}

// RequireAdmin restricts a route group to admin actors.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok || !actor.IsAdmin() {
				return apperr.Forbidden("admin role required")
			}
			return next(c)
		}
	}
}
