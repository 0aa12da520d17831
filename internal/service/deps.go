// Package service contains the session, verification and permission
// logic of the identity service. Services receive their collaborators
// through constructors; there is no ambient registry.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// UserStore is the slice of the credential store the services need for
// account records. *repository.UserRepo satisfies it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (uint64, error)
	CreateVerified(ctx context.Context, email, passwordHash string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	MarkVerified(ctx context.Context, email string) error
	BumpTokenVersion(ctx context.Context, id uint64) error
}

// TokenStore persists refresh tokens. *repository.TokenRepo satisfies
// it. Rotate must be atomic: at most one concurrent redemption of the
// same hash may succeed.
type TokenStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time, ip, userAgent string) error
	FindActive(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, userID uint64, newHash string, exp time.Time, ip, userAgent string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// PermissionSource lists the permissions reachable from a user's
// roles, duplicates included. *repository.PermissionRepo satisfies it.
type PermissionSource interface {
	ListByUserID(ctx context.Context, userID uint64) ([]model.Permission, error)
}

// EmailDispatcher enqueues a verification email for out-of-band
// delivery. Implementations only guarantee the enqueue, not delivery.
type EmailDispatcher interface {
	SendVerificationEmail(ctx context.Context, to, otp string) error
}
