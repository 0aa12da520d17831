package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/service"
)

// statusFor maps a domain error kind to its HTTP status code. The
// mapping is the only place transport codes and domain kinds meet.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidCredential, service.KindInvalidToken:
		return http.StatusUnauthorized
	case service.KindUnverified, service.KindInactive:
		return http.StatusForbidden
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders a domain error as JSON. Domain kinds surface with
// their message; anything unexpected is logged with full context and
// reported as an opaque failure so internals never leak to clients.
func writeErr(c echo.Context, err error) error {
	de, ok := service.AsError(err)
	if !ok || de.Kind == service.KindUnexpected {
		log.Printf("%s %s failed: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   string(service.KindUnexpected),
			"message": "internal server error",
		})
	}
	body := echo.Map{"error": string(de.Kind), "message": de.Message}
	if de.Kind == service.KindRateLimited {
		body["retry_after"] = de.RetryAfter
		c.Response().Header().Set("Retry-After", strconv.Itoa(de.RetryAfter))
	}
	return c.JSON(statusFor(de.Kind), body)
}
