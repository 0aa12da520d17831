package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// may define separate response types with appropriate JSON tags.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	IsVerified   – whether the email address has been confirmed via OTP.
//	IsActive     – whether the account is active.
//	TokenVersion – counter embedded in access tokens; bumping it
//	               invalidates every outstanding access token.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	IsVerified   bool      // users.is_verified
	IsActive     bool      // users.is_active
	TokenVersion uint32    // users.token_version
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Profile is the minimal user projection kept in the Redis profile
// cache. It contains only what the auth middleware needs on the hot
// path: the account gates and the live token version.
type Profile struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	IsVerified   bool   `json:"is_verified"`
	IsActive     bool   `json:"is_active"`
	TokenVersion uint32 `json:"token_version"`
}
