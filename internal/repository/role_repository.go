package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/identity-service/internal/model"
)

// SuperAdminRole is the bootstrap role holding every catalog
// permission.
const SuperAdminRole = "super_admin"

// RoleRepo manages roles and their permission attachments.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// List returns all roles with their attached permissions.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.Role
	idx := map[uint64]int{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		idx[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.DB.QueryContext(ctx,
		`SELECT rp.role_id, p.id, p.action, p.resource, p.description
		   FROM role_permissions rp
		   JOIN permissions p ON p.id = rp.permission_id`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID uint64
		var p model.Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Action, &p.Resource, &p.Description); err != nil {
			return nil, err
		}
		if i, ok := idx[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return roles, permRows.Err()
}

// GetByID returns one role with its permissions.
func (r *RoleRepo) GetByID(ctx context.Context, id uint64) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE id=? LIMIT 1", id).
		Scan(&role.ID, &role.Name)
	if err == sql.ErrNoRows {
		return role, ErrNotFound
	}
	if err != nil {
		return role, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.id, p.action, p.resource, p.description
		   FROM role_permissions rp
		   JOIN permissions p ON p.id = rp.permission_id
		  WHERE rp.role_id=?`, id)
	if err != nil {
		return role, err
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Resource, &p.Description); err != nil {
			return role, err
		}
		role.Permissions = append(role.Permissions, p)
	}
	return role, rows.Err()
}

// GetByName fetches a role by its unique name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name)
	if err == sql.ErrNoRows {
		return role, ErrNotFound
	}
	return role, err
}

// Create inserts a role and its permission attachments in one
// transaction.
func (r *RoleRepo) Create(ctx context.Context, name string, permissionIDs []uint64) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "INSERT INTO roles (name) VALUES (?)", name)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rid := uint64(id64)
	if err := insertRolePermissions(ctx, tx, rid, permissionIDs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return rid, nil
}

// Update renames a role and/or replaces its permission set in one
// transaction. A nil permissionIDs slice keeps the current
// attachments.
func (r *RoleRepo) Update(ctx context.Context, id uint64, name *string, permissionIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM roles WHERE id=?", id).Scan(&one); err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if name != nil {
		if _, err := tx.ExecContext(ctx, "UPDATE roles SET name=? WHERE id=?", *name, id); err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
	}
	if permissionIDs != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id=?", id); err != nil {
			return err
		}
		if err := insertRolePermissions(ctx, tx, id, permissionIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a role. Its role_permissions and user_roles rows go
// first in the same transaction to keep referential integrity.
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id=?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE role_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// CountByIDs reports how many of the given role ids exist. Services
// use it to validate assignment requests before writing.
func (r *RoleRepo) CountByIDs(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := "SELECT COUNT(*) FROM roles WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.DB.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// SeedSuperAdmin ensures the super_admin role exists and carries every
// permission in the catalog. INSERT IGNORE keeps the call idempotent;
// rerunning after the catalog grows attaches the new permissions too.
func (r *RoleRepo) SeedSuperAdmin(ctx context.Context) (uint64, error) {
	if _, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO roles (name) VALUES (?)", SuperAdminRole); err != nil {
		return 0, err
	}
	role, err := r.GetByName(ctx, SuperAdminRole)
	if err != nil {
		return 0, err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO role_permissions (role_id, permission_id) SELECT ?, id FROM permissions",
		role.ID)
	return role.ID, err
}

func insertRolePermissions(ctx context.Context, tx *sql.Tx, roleID uint64, permissionIDs []uint64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	q := "INSERT INTO role_permissions (role_id, permission_id) VALUES "
	args := make([]interface{}, 0, len(permissionIDs)*2)
	for i, pid := range permissionIDs {
		if i > 0 {
			q += ","
		}
		q += "(?,?)"
		args = append(args, roleID, pid)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
