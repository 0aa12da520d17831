package service

import (
	"context"
	"log"
	"net/mail"

	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/utils"
)

// RoleSeeder provisions the super_admin role with the full permission
// catalog. *repository.RoleRepo satisfies it.
type RoleSeeder interface {
	SeedSuperAdmin(ctx context.Context) (uint64, error)
}

// AdminSeeder provisions the bootstrap admin account under a role.
// *repository.UserRepo satisfies it.
type AdminSeeder interface {
	SeedAdmin(ctx context.Context, email, passwordHash string, roleID uint64) (uint64, error)
}

// Bootstrap seeds the super_admin role and, when a bootstrap email is
// configured, an account holding it. Without this a fresh database has
// no user carrying any admin grant and the management API cannot be
// reached. The whole sequence is idempotent across restarts.
func Bootstrap(ctx context.Context, cfg config.Config, roles RoleSeeder, users AdminSeeder) error {
	roleID, err := roles.SeedSuperAdmin(ctx)
	if err != nil {
		return Wrap(KindUnexpected, "seed super admin role", err)
	}
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	if _, err := mail.ParseAddress(cfg.BootstrapAdminEmail); err != nil {
		return E(KindValidation, "BOOTSTRAP_ADMIN_EMAIL is not a valid address")
	}
	if len(cfg.BootstrapAdminPassword) < 8 {
		return E(KindValidation, "BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}
	hash, err := utils.HashPassword(cfg.BootstrapAdminPassword, cfg.BcryptCost)
	if err != nil {
		return Wrap(KindUnexpected, "hash bootstrap password", err)
	}
	uid, err := users.SeedAdmin(ctx, cfg.BootstrapAdminEmail, hash, roleID)
	if err != nil {
		return Wrap(KindUnexpected, "seed bootstrap admin", err)
	}
	log.Printf("bootstrap: admin %s holds role %d (user %d)", cfg.BootstrapAdminEmail, roleID, uid)
	return nil
}
