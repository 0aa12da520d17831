package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/service"
	"github.com/iliyamo/identity-service/internal/utils"
)

// Context keys set by JWTAuth for downstream middleware and handlers.
const (
	CtxUserID      = "user_id"
	CtxPermissions = "permissions"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token (falling back to the access_token cookie, which is how browser
// sessions carry it) and injects the subject and permission snapshot
// into the request context. The token's embedded version is compared
// against the live profile so that a sign-out anywhere invalidates
// every outstanding access token; the profile lookup is served by the
// Redis cache on the hot path.
func JWTAuth(secret string, profiles *service.ProfileCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing access token"})
			}

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			prof, err := profiles.Get(c.Request().Context(), claims.UserID)
			if err != nil {
				// A deleted account means the token no longer names
				// anyone; anything else is a storage fault, not a bad
				// credential.
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				log.Printf("jwt: profile lookup for user %d failed: %v", claims.UserID, err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
			}
			if !prof.IsActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is deactivated"})
			}
			if prof.TokenVersion != claims.TokenVersion {
				// The user signed out (or was signed out) after this token
				// was minted.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxPermissions, claims.Permissions)
			return next(c)
		}
	}
}

// bearerToken extracts the raw access token from the Authorization
// header or, failing that, the access_token cookie.
func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if ck, err := c.Cookie("access_token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	return ""
}
