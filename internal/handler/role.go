package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/service"
)

// RoleHandler exposes the admin role CRUD endpoints.
type RoleHandler struct {
	Roles       *repository.RoleRepo
	Permissions *repository.PermissionRepo
}

func NewRoleHandler(roles *repository.RoleRepo, perms *repository.PermissionRepo) *RoleHandler {
	return &RoleHandler{Roles: roles, Permissions: perms}
}

type roleReq struct {
	Name          *string  `json:"name"`
	PermissionIDs []uint64 `json:"permission_ids"`
}

// List handles GET /v1/roles, each role carrying its permission set.
func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	roles, err := h.Roles.List(ctx)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "list roles", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

// Get handles GET /v1/roles/:id.
func (h *RoleHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	role, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "load role", err))
	}
	return c.JSON(http.StatusOK, role)
}

// Create handles POST /v1/roles.
func (h *RoleHandler) Create(c echo.Context) error {
	var body roleReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	name := strings.TrimSpace(*body.Name)

	ctx, cancel := reqCtx(c)
	defer cancel()
	// Check the name up front; the unique constraint backstops races.
	if _, err := h.Roles.GetByName(ctx, name); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "role name already exists"})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return writeErr(c, service.Wrap(service.KindUnexpected, "check role name", err))
	}
	if err := h.checkPermissionIDs(ctx, body.PermissionIDs); err != nil {
		if errors.Is(err, errUnknownPermission) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errUnknownPermission.Error()})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "verify permissions", err))
	}
	id, err := h.Roles.Create(ctx, name, body.PermissionIDs)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "role name already exists"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "create role", err))
	}
	role, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "reload role", err))
	}
	return c.JSON(http.StatusCreated, role)
}

// Update handles PATCH /v1/roles/:id. A nil name keeps the current
// one; permission_ids present (even empty) replaces the set.
func (h *RoleHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body roleReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Name != nil {
		n := strings.TrimSpace(*body.Name)
		if n == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name must not be empty"})
		}
		body.Name = &n
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if body.PermissionIDs != nil {
		if err := h.checkPermissionIDs(ctx, body.PermissionIDs); err != nil {
			if errors.Is(err, errUnknownPermission) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": errUnknownPermission.Error()})
			}
			return writeErr(c, service.Wrap(service.KindUnexpected, "verify permissions", err))
		}
	}
	if err := h.Roles.Update(ctx, id, body.Name, body.PermissionIDs); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		case errors.Is(err, repository.ErrDuplicate):
			return c.JSON(http.StatusConflict, echo.Map{"error": "role name already exists"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "update role", err))
	}
	role, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "reload role", err))
	}
	return c.JSON(http.StatusOK, role)
}

// Delete handles DELETE /v1/roles/:id. Assignments referencing the
// role are removed in the same transaction; users simply lose those
// grants on their next token issue.
func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Roles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "delete role", err))
	}
	return c.NoContent(http.StatusNoContent)
}

var errUnknownPermission = errors.New("one or more permission_ids do not exist")

// checkPermissionIDs reports errUnknownPermission when any referenced
// permission is missing from the catalog.
func (h *RoleHandler) checkPermissionIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := h.Permissions.CountByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(uniqueIDs(ids)) {
		return errUnknownPermission
	}
	return nil
}
