package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/model"
)

// RequirePermission returns a middleware that enforces a declared
// (action, resource) requirement against the permission snapshot the
// JWT middleware placed in context. Requests without the grant are
// rejected with 403. It assumes JWTAuth ran earlier in the chain.
func RequirePermission(action, resource string) echo.MiddlewareFunc {
	want := model.Grant{Action: action, Resource: resource}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			grants, ok := c.Get(CtxPermissions).([]model.Grant)
			if !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			for _, g := range grants {
				if g == want {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}
