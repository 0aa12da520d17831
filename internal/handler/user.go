package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/service"
	"github.com/iliyamo/identity-service/internal/utils"
)

// UserHandler exposes the admin user management endpoints. Handlers
// talk to the repositories directly; the only service touched is the
// profile cache, which must be invalidated whenever an account row
// changes underneath live sessions.
type UserHandler struct {
	Users      *repository.UserRepo
	Roles      *repository.RoleRepo
	Tokens     *repository.TokenRepo
	Profiles   *service.ProfileCache
	BcryptCost int
}

func NewUserHandler(users *repository.UserRepo, roles *repository.RoleRepo, tokens *repository.TokenRepo, profiles *service.ProfileCache, bcryptCost int) *UserHandler {
	return &UserHandler{Users: users, Roles: roles, Tokens: tokens, Profiles: profiles, BcryptCost: bcryptCost}
}

type userResp struct {
	ID         uint64       `json:"id"`
	Email      string       `json:"email"`
	IsVerified bool         `json:"is_verified"`
	IsActive   bool         `json:"is_active"`
	Roles      []model.Role `json:"roles"`
	CreatedAt  time.Time    `json:"created_at"`
}

func toUserResp(u model.User, roles []model.Role) userResp {
	if roles == nil {
		roles = []model.Role{}
	}
	return userResp{
		ID:         u.ID,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		IsActive:   u.IsActive,
		Roles:      roles,
		CreatedAt:  u.CreatedAt,
	}
}

// List handles GET /v1/users with optional search, is_active, page and
// limit query parameters.
func (h *UserHandler) List(c echo.Context) error {
	f := repository.UserFilter{
		Search: strings.TrimSpace(c.QueryParam("search")),
		Page:   1,
		Limit:  20,
	}
	if v := c.QueryParam("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_active must be a boolean"})
		}
		f.IsActive = &b
	}
	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "page must be a positive integer"})
		}
		f.Page = n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 100"})
		}
		f.Limit = n
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	users, roles, total, err := h.Users.List(ctx, f)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "list users", err))
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u, roles[u.ID]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users": out,
		"total": total,
		"page":  f.Page,
		"limit": f.Limit,
	})
}

// Get handles GET /v1/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "load user", err))
	}
	roles, err := h.Users.RolesByUserID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "load user roles", err))
	}
	return c.JSON(http.StatusOK, toUserResp(u, roles))
}

// Create handles POST /v1/users. Admin-created accounts are verified
// from the start; the OTP flow only applies to self sign-up.
func (h *UserHandler) Create(c echo.Context) error {
	var body struct {
		Email    string   `json:"email"`
		Password string   `json:"password"`
		IsActive *bool    `json:"is_active"`
		RoleIDs  []uint64 `json:"role_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if _, err := mail.ParseAddress(body.Email); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email is required"})
	}
	if len(body.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.checkRoleIDs(ctx, body.RoleIDs); err != nil {
		if errors.Is(err, errUnknownRole) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errUnknownRole.Error()})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "verify roles", err))
	}
	hash, err := utils.HashPassword(body.Password, h.BcryptCost)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "hash password", err))
	}
	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}
	id, err := h.Users.CreateWithRoles(ctx, body.Email, hash, active, body.RoleIDs)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "create user", err))
	}
	return h.respondWith(c, http.StatusCreated, id)
}

// Update handles PATCH /v1/users/:id. Absent fields keep their current
// values; role_ids present (even empty) replaces the assignment set.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Email    *string  `json:"email"`
		Password *string  `json:"password"`
		IsActive *bool    `json:"is_active"`
		RoleIDs  []uint64 `json:"role_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*body.Email))
		if _, err := mail.ParseAddress(e); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email is required"})
		}
		body.Email = &e
	}
	var hashPtr *string
	if body.Password != nil {
		if len(*body.Password) < 8 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
		}
		hash, err := utils.HashPassword(*body.Password, h.BcryptCost)
		if err != nil {
			return writeErr(c, service.Wrap(service.KindUnexpected, "hash password", err))
		}
		hashPtr = &hash
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if body.RoleIDs != nil {
		if err := h.checkRoleIDs(ctx, body.RoleIDs); err != nil {
			if errors.Is(err, errUnknownRole) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": errUnknownRole.Error()})
			}
			return writeErr(c, service.Wrap(service.KindUnexpected, "verify roles", err))
		}
	}
	if err := h.Users.UpdateWithRoles(ctx, id, body.Email, hashPtr, body.IsActive, body.RoleIDs); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, repository.ErrDuplicate):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "update user", err))
	}
	// Deactivation also cuts the refresh chain, so the session ends at
	// the access token's expiry rather than its next renewal.
	if body.IsActive != nil && !*body.IsActive {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			return writeErr(c, service.Wrap(service.KindUnexpected, "revoke refresh tokens", err))
		}
	}
	// Live access tokens carry stale role snapshots until expiry, but
	// the cached profile must reflect the new account state now.
	h.Profiles.Invalidate(ctx, id)
	return h.respondWith(c, http.StatusOK, id)
}

// Delete handles DELETE /v1/users/:id. Refresh tokens and role
// assignments go with the account in a single transaction.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return writeErr(c, service.Wrap(service.KindUnexpected, "delete user", err))
	}
	h.Profiles.Invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

var errUnknownRole = errors.New("one or more role_ids do not exist")

// checkRoleIDs reports errUnknownRole when any referenced role is
// missing from the catalog.
func (h *UserHandler) checkRoleIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := h.Roles.CountByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(uniqueIDs(ids)) {
		return errUnknownRole
	}
	return nil
}

// respondWith reloads the user and renders it, so create and update
// responses always reflect what the database actually stored.
func (h *UserHandler) respondWith(c echo.Context, status int, id uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "reload user", err))
	}
	roles, err := h.Users.RolesByUserID(ctx, id)
	if err != nil {
		return writeErr(c, service.Wrap(service.KindUnexpected, "reload user roles", err))
	}
	return c.JSON(status, toUserResp(u, roles))
}

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
