package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/service"
)

// PermissionHandler exposes the permission catalog. The catalog is
// seeded at startup and mostly read-only; only descriptions can be
// edited, because renaming an (action, resource) pair would silently
// change what every role built on it means.
type PermissionHandler struct {
	Permissions *repository.PermissionRepo
}

func NewPermissionHandler(perms *repository.PermissionRepo) *PermissionHandler {
	return &PermissionHandler{Permissions: perms}
}

// List handles GET /v1/permissions.
func (h *PermissionHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	perms, err := h.Permissions.List(ctx)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "list permissions", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"permissions": perms})
}

// Get handles GET /v1/permissions/:id.
func (h *PermissionHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Permissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "permission not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "load permission", err))
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateDescription handles PATCH /v1/permissions/:id.
func (h *PermissionHandler) UpdateDescription(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Description *string `json:"description"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Description == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "description is required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Permissions.UpdateDescription(ctx, id, strings.TrimSpace(*body.Description)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "permission not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "update permission", err))
	}
	p, err := h.Permissions.GetByID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "reload permission", err))
	}
	return c.JSON(http.StatusOK, p)
}
