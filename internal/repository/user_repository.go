package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// UserRepo persists users and their role assignments.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,is_verified,is_active,token_version,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified, &u.IsActive,
		&u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// Create inserts a fresh, unverified user and returns its ID. The
// password must already be hashed by the caller.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, is_verified, is_active) VALUES (?,?,FALSE,TRUE)",
		email, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateVerified inserts a user that is already verified, used when an
// account is provisioned from a trusted OAuth identity.
func (r *UserRepo) CreateVerified(ctx context.Context, email, passwordHash string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, is_verified, is_active) VALUES (?,?,TRUE,TRUE)",
		email, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by exact email as stored.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// MarkVerified flips the is_verified flag after a successful OTP check.
func (r *UserRepo) MarkVerified(ctx context.Context, email string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=TRUE WHERE email=?", email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpTokenVersion increments the user's token version, invalidating
// every outstanding access token that embeds the previous value.
func (r *UserRepo) BumpTokenVersion(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET token_version=token_version+1 WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserFilter narrows List results. Zero values mean "no filter".
type UserFilter struct {
	Search   string // substring match on email
	IsActive *bool
	Page     int
	Limit    int
}

// List returns one page of users plus the total count matching the
// filter. Role assignments are loaded for each returned user.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, map[uint64][]model.Role, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if f.Search != "" {
		where += " AND email LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	if f.IsActive != nil {
		where += " AND is_active=?"
		args = append(args, *f.IsActive)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	q := "SELECT " + userColumns + " FROM users" + where + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, 0, err
	}
	defer rows.Close()

	var users []model.User
	ids := []uint64{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified, &u.IsActive,
			&u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, nil, 0, err
		}
		users = append(users, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, err
	}

	roles, err := r.rolesForUsers(ctx, ids)
	if err != nil {
		return nil, nil, 0, err
	}
	return users, roles, total, nil
}

// RolesByUserID returns the roles assigned to a single user.
func (r *UserRepo) RolesByUserID(ctx context.Context, id uint64) ([]model.Role, error) {
	m, err := r.rolesForUsers(ctx, []uint64{id})
	if err != nil {
		return nil, err
	}
	return m[id], nil
}

func (r *UserRepo) rolesForUsers(ctx context.Context, ids []uint64) (map[uint64][]model.Role, error) {
	out := make(map[uint64][]model.Role, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT ur.user_id, r.id, r.name
	        FROM user_roles ur
	        JOIN roles r ON r.id = ur.role_id
	       WHERE ur.user_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var uid uint64
		var role model.Role
		if err := rows.Scan(&uid, &role.ID, &role.Name); err != nil {
			return nil, err
		}
		out[uid] = append(out[uid], role)
	}
	return out, rows.Err()
}

// CreateWithRoles inserts a user and its role assignments in one
// transaction. The account is created verified; the OTP flow only
// covers self sign-up. roleIDs must reference existing roles.
func (r *UserRepo) CreateWithRoles(ctx context.Context, email, passwordHash string, isActive bool, roleIDs []uint64) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, is_verified, is_active) VALUES (?,?,TRUE,?)",
		email, passwordHash, isActive)
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
	uid := uint64(id64)
	if err := insertUserRoles(ctx, tx, uid, roleIDs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uid, nil
}

// UpdateWithRoles updates the mutable user fields and replaces the
// role set in one transaction. Nil pointers leave the corresponding
// column untouched; a nil roleIDs slice keeps the existing
// assignments.
func (r *UserRepo) UpdateWithRoles(ctx context.Context, id uint64, email, passwordHash *string, isActive *bool, roleIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	set := []string{}
	args := []interface{}{}
	if email != nil {
		set = append(set, "email=?")
		args = append(args, *email)
	}
	if passwordHash != nil {
		set = append(set, "password_hash=?")
		args = append(args, *passwordHash)
	}
	if isActive != nil {
		set = append(set, "is_active=?")
		args = append(args, *isActive)
	}
	if len(set) > 0 {
		args = append(args, id)
		res, err := tx.ExecContext(ctx, "UPDATE users SET "+strings.Join(set, ",")+" WHERE id=?", args...)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Row may exist with identical values; confirm presence.
			var one int
			if err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one); err == sql.ErrNoRows {
				return ErrNotFound
			} else if err != nil {
				return err
			}
		}
	}
	if roleIDs != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", id); err != nil {
			return err
		}
		if err := insertUserRoles(ctx, tx, id, roleIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a user together with its role assignments and refresh
// tokens in one transaction, so no orphaned token rows survive the
// account.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// SeedAdmin ensures a bootstrap account holding the given role. An
// existing account only gets the role attached; its stored password is
// never replaced from the environment.
func (r *UserRepo) SeedAdmin(ctx context.Context, email, passwordHash string, roleID uint64) (uint64, error) {
	u, err := r.GetByEmail(ctx, email)
	switch err {
	case nil:
		_, err = r.DB.ExecContext(ctx,
			"INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?,?)", u.ID, roleID)
		return u.ID, err
	case ErrNotFound:
		return r.CreateWithRoles(ctx, email, passwordHash, true, []uint64{roleID})
	default:
		return 0, err
	}
}

// DeleteUnverifiedBefore removes unverified accounts created before the
// cutoff. Used by the janitor.
func (r *UserRepo) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM users WHERE is_verified=FALSE AND created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertUserRoles(ctx context.Context, tx *sql.Tx, userID uint64, roleIDs []uint64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	q := "INSERT INTO user_roles (user_id, role_id) VALUES "
	args := make([]interface{}, 0, len(roleIDs)*2)
	for i, rid := range roleIDs {
		if i > 0 {
			q += ","
		}
		q += "(?,?)"
		args = append(args, userID, rid)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
