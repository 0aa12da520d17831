package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/handler"
	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/service"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires up the authentication surface. Unauthenticated
// operations live under /v1/auth; endpoints needing a live session
// live under /v1 behind the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler, jwtSecret string, profiles *service.ProfileCache, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	if limiter != nil {
		g.Use(limiter)
	}
	g.POST("/sign-up", a.SignUp)
	g.POST("/sign-in", a.SignIn)
	g.POST("/refresh", a.Refresh)
	g.POST("/resend-otp", a.ResendOTP)
	g.POST("/verify", a.VerifyUser)
	if o != nil {
		g.GET("/google", o.GoogleLogin)
		g.GET("/google/callback", o.GoogleCallback)
	}

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret, profiles))
	auth.POST("/auth/sign-out", a.SignOut)
	auth.GET("/me", a.Me)
}

// RegisterAdmin wires up the management endpoints. Everything here
// sits behind JWT auth plus a permission check against the admin
// resource: read grants the GETs, write grants the mutations.
func RegisterAdmin(e *echo.Echo, u *handler.UserHandler, r *handler.RoleHandler, p *handler.PermissionHandler, jwtSecret string, profiles *service.ProfileCache) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret, profiles))

	read := middleware.RequirePermission(model.ActionRead, model.ResourceAdmin)
	write := middleware.RequirePermission(model.ActionWrite, model.ResourceAdmin)

	g.GET("/users", u.List, read)
	g.GET("/users/:id", u.Get, read)
	g.POST("/users", u.Create, write)
	g.PATCH("/users/:id", u.Update, write)
	g.DELETE("/users/:id", u.Delete, write)

	g.GET("/roles", r.List, read)
	g.GET("/roles/:id", r.Get, read)
	g.POST("/roles", r.Create, write)
	g.PATCH("/roles/:id", r.Update, write)
	g.DELETE("/roles/:id", r.Delete, write)

	g.GET("/permissions", p.List, read)
	g.GET("/permissions/:id", p.Get, read)
	g.PATCH("/permissions/:id", p.UpdateDescription, write)
}
