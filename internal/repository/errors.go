// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services to distinguish between different failure scenarios without
// inspecting driver error strings themselves. For example,
// ErrDuplicate indicates a unique-constraint violation (duplicate
// email, role name, or action+resource pair), while ErrTokenInvalid
// signals that a refresh token could not be redeemed because it is
// missing, revoked or expired.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested user, role or permission
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// constraint (users.email, roles.name, permissions action+resource).
var ErrDuplicate = errors.New("duplicate entry")

// ErrTokenInvalid is returned when a refresh token row is absent,
// already revoked, or past its expiry. Redemption treats all three the
// same so callers cannot probe token state.
var ErrTokenInvalid = errors.New("invalid or expired refresh token")

// isDuplicate reports whether a MySQL error is a unique-constraint
// violation (error 1062). String matching keeps the driver types out
// of the repository API.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
