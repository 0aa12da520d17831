package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table. Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation. The plain token is never stored; only its SHA-256
// hash. IPAddress and UserAgent are recorded for auditing.
//
// A token is usable iff RevokedAt is nil and ExpiresAt is in the
// future.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	IPAddress string     // refresh_tokens.ip_address
	UserAgent string     // refresh_tokens.user_agent
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Usable reports whether the token can still be redeemed at the given
// instant.
func (t RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
