package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/identity-service/internal/model"
)

// PermissionRepo manages the permission catalog and resolves the
// permissions reachable from a user's roles.
type PermissionRepo struct{ DB *sql.DB }

func NewPermissionRepo(db *sql.DB) *PermissionRepo { return &PermissionRepo{DB: db} }

// List returns the whole permission catalog.
func (r *PermissionRepo) List(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, action, resource, description FROM permissions ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Resource, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetByID returns one permission.
func (r *PermissionRepo) GetByID(ctx context.Context, id uint64) (model.Permission, error) {
	var p model.Permission
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, action, resource, description FROM permissions WHERE id=? LIMIT 1", id).
		Scan(&p.ID, &p.Action, &p.Resource, &p.Description)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// UpdateDescription changes the human-readable description. Action and
// resource stay immutable once seeded.
func (r *PermissionRepo) UpdateDescription(ctx context.Context, id uint64, description string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE permissions SET description=? WHERE id=?", description, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM permissions WHERE id=?", id).Scan(&one); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return err
		}
	}
	return nil
}

// ListByUserID returns every permission reachable through the user's
// roles. A permission granted by two roles appears twice; callers that
// need a set must de-duplicate.
func (r *PermissionRepo) ListByUserID(ctx context.Context, userID uint64) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.id, p.action, p.resource, p.description
		   FROM user_roles ur
		   JOIN role_permissions rp ON rp.role_id = ur.role_id
		   JOIN permissions p ON p.id = rp.permission_id
		  WHERE ur.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Resource, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CountByIDs reports how many of the given permission ids exist.
func (r *PermissionRepo) CountByIDs(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := "SELECT COUNT(*) FROM permissions WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.DB.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// Seed inserts the default permission catalog if absent. INSERT IGNORE
// keeps the call idempotent across restarts.
func (r *PermissionRepo) Seed(ctx context.Context) error {
	defaults := []model.Grant{
		{Action: model.ActionRead, Resource: model.ResourceAdmin},
		{Action: model.ActionWrite, Resource: model.ResourceAdmin},
	}
	for _, g := range defaults {
		desc := fmt.Sprintf("%s access to %s", g.Action, g.Resource)
		if _, err := r.DB.ExecContext(ctx,
			"INSERT IGNORE INTO permissions (action, resource, description) VALUES (?,?,?)",
			g.Action, g.Resource, desc); err != nil {
			return err
		}
	}
	return nil
}
