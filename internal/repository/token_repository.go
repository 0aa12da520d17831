package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// TokenRepo persists and validates refresh tokens. Tokens are stored
// as SHA-256 hashes; the raw value never reaches this layer.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a refresh token hash row with its audit metadata.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time, ip, userAgent string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, ip_address, user_agent) VALUES (?,?,?,?,?)",
		userID, tokenHash, exp, ip, userAgent)
	return err
}

// FindActive returns the token row for a hash if it is neither revoked
// nor expired. Missing, revoked and expired rows all yield
// ErrTokenInvalid.
func (r *TokenRepo) FindActive(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked_at, ip_address, user_agent, created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.IPAddress, &t.UserAgent, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrTokenInvalid
	}
	if err != nil {
		return t, err
	}
	if revokedAt.Valid {
		return t, ErrTokenInvalid
	}
	if time.Now().UTC().After(t.ExpiresAt) {
		return t, ErrTokenInvalid
	}
	return t, nil
}

// Rotate redeems a refresh token: it revokes the old hash and inserts
// the replacement in a single transaction. The revoke statement only
// matches a row that is still unrevoked and unexpired, and the
// affected-row count is checked, so concurrent redemptions of the same
// raw token see exactly one winner; losers get ErrTokenInvalid.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, userID uint64, newHash string, exp time.Time, ip, userAgent string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL AND expires_at > NOW()",
		oldHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenInvalid
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, ip_address, user_agent) VALUES (?,?,?,?,?)",
		userID, newHash, exp, ip, userAgent); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeAllForUser revokes every active token the user owns.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired removes revoked and expired rows, returning the count.
// Called periodically by the janitor.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL OR expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
