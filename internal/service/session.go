package service

import (
	"context"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/utils"
)

// Identity is the public projection of an account returned from
// sign-up.
type Identity struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}

// Session bundles the two artifacts a successful authentication hands
// back to the transport layer: a short-lived signed access token and a
// long-lived opaque refresh token, each with its expiry so the caller
// can derive cookie lifetimes.
type Session struct {
	User           Identity
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// RequestMeta carries the audit fields recorded with every refresh
// token.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// SessionService orchestrates sign-up, sign-in, refresh rotation,
// sign-out and OAuth provisioning. All collaborators arrive through
// the constructor.
type SessionService struct {
	cfg          config.Config
	users        UserStore
	tokens       TokenStore
	resolver     *PermissionResolver
	profiles     *ProfileCache
	verification *VerificationService
}

func NewSessionService(cfg config.Config, users UserStore, tokens TokenStore,
	resolver *PermissionResolver, profiles *ProfileCache, verification *VerificationService) *SessionService {
	return &SessionService{
		cfg:          cfg,
		users:        users,
		tokens:       tokens,
		resolver:     resolver,
		profiles:     profiles,
		verification: verification,
	}
}

// SignUp registers a new, unverified account and asynchronously
// dispatches a verification email. No tokens are returned; the account
// is unusable until the OTP is confirmed.
func (s *SessionService) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Identity{}, E(KindValidation, "a valid email is required")
	}
	if len(password) < 8 {
		return Identity{}, E(KindValidation, "password must be at least 8 characters")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return Identity{}, E(KindConflict, "user already exists")
	} else if err != repository.ErrNotFound {
		return Identity{}, Wrap(KindUnexpected, "check existing user", err)
	}

	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return Identity{}, Wrap(KindUnexpected, "hash password", err)
	}
	uid, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if err == repository.ErrDuplicate {
			return Identity{}, E(KindConflict, "user already exists")
		}
		return Identity{}, Wrap(KindUnexpected, "create user", err)
	}

	// The sign-up is committed; the email dispatch is fire-and-forget
	// with its own deadline so a slow broker cannot roll it back or
	// block the response.
	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.verification.Dispatch(dctx, email); err != nil {
			log.Printf("session: verification dispatch for %s failed: %v", email, err)
		}
	}()

	return Identity{ID: uid, Email: email}, nil
}

// SignIn authenticates an email/password pair and issues a fresh
// session. Unverified and deactivated accounts are rejected before the
// password is checked against the hash.
func (s *SessionService) SignIn(ctx context.Context, email, password string, meta RequestMeta) (Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrNotFound {
			return Session{}, E(KindNotFound, "user not found")
		}
		return Session{}, Wrap(KindUnexpected, "load user", err)
	}
	if !u.IsVerified {
		return Session{}, E(KindUnverified, "account is not verified")
	}
	if !u.IsActive {
		return Session{}, E(KindInactive, "account is deactivated")
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, E(KindInvalidCredential, "invalid password")
	}
	return s.issue(ctx, u, meta)
}

// Refresh redeems a raw refresh token: the matched row is revoked and
// replaced atomically, permissions are recomputed, and a new access
// token is signed. Every failure is reported with the token kind so
// the transport layer clears any session artifacts it is holding.
func (s *SessionService) Refresh(ctx context.Context, rawRefresh string, meta RequestMeta) (Session, error) {
	if rawRefresh == "" {
		return Session{}, E(KindInvalidToken, "invalid or expired refresh token")
	}
	hash := utils.HashRefreshRaw(rawRefresh)

	row, err := s.tokens.FindActive(ctx, hash)
	if err != nil {
		if err == repository.ErrTokenInvalid {
			return Session{}, E(KindInvalidToken, "invalid or expired refresh token")
		}
		return Session{}, Wrap(KindUnexpected, "look up refresh token", err)
	}
	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		if err == repository.ErrNotFound {
			return Session{}, E(KindInvalidToken, "invalid or expired refresh token")
		}
		return Session{}, Wrap(KindUnexpected, "load user", err)
	}
	if !u.IsActive {
		return Session{}, E(KindInactive, "account is deactivated")
	}

	next, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, Wrap(KindUnexpected, "issue refresh token", err)
	}
	err = s.tokens.Rotate(ctx, hash, u.ID, utils.HashRefreshRaw(next.Raw), next.Exp, meta.IP, meta.UserAgent)
	if err != nil {
		if err == repository.ErrTokenInvalid {
			// Lost the race: another redemption of the same token won.
			return Session{}, E(KindInvalidToken, "invalid or expired refresh token")
		}
		return Session{}, Wrap(KindUnexpected, "rotate refresh token", err)
	}

	grants, err := s.resolver.Resolve(ctx, u.ID)
	if err != nil {
		return Session{}, err
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.TokenVersion, grants, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, Wrap(KindUnexpected, "sign access token", err)
	}
	return Session{
		User:           Identity{ID: u.ID, Email: u.Email},
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   next.Raw,
		RefreshExpires: next.Exp,
	}, nil
}

// SignOut terminates the session everywhere: the user's token version
// is bumped so outstanding access tokens fail validation, every
// refresh token the user owns is revoked, and the cached profile is
// dropped.
func (s *SessionService) SignOut(ctx context.Context, userID uint64) error {
	if err := s.users.BumpTokenVersion(ctx, userID); err != nil && err != repository.ErrNotFound {
		return Wrap(KindUnexpected, "bump token version", err)
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return Wrap(KindUnexpected, "revoke refresh tokens", err)
	}
	s.profiles.Invalidate(ctx, userID)
	return nil
}

// OAuthLogin signs in a user by a verified external email, creating
// the account on first contact. Provisioned accounts get a random
// unusable password and skip OTP verification because the provider
// already proved control of the address.
func (s *SessionService) OAuthLogin(ctx context.Context, email string, meta RequestMeta) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, E(KindValidation, "a valid email is required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == repository.ErrNotFound:
		raw, randErr := utils.RandomHex(32)
		if randErr != nil {
			return Session{}, Wrap(KindUnexpected, "generate password", randErr)
		}
		hash, hashErr := utils.HashPassword(raw, s.cfg.BcryptCost)
		if hashErr != nil {
			return Session{}, Wrap(KindUnexpected, "hash password", hashErr)
		}
		if _, createErr := s.users.CreateVerified(ctx, email, hash); createErr != nil && createErr != repository.ErrDuplicate {
			return Session{}, Wrap(KindUnexpected, "provision user", createErr)
		}
		if u, err = s.users.GetByEmail(ctx, email); err != nil {
			return Session{}, Wrap(KindUnexpected, "load provisioned user", err)
		}
	case err != nil:
		return Session{}, Wrap(KindUnexpected, "load user", err)
	}

	if !u.IsActive {
		return Session{}, E(KindInactive, "account is deactivated")
	}
	return s.issue(ctx, u, meta)
}

// issue resolves permissions, signs the access token, and persists a
// new refresh token for the user.
func (s *SessionService) issue(ctx context.Context, u model.User, meta RequestMeta) (Session, error) {
	grants, err := s.resolver.Resolve(ctx, u.ID)
	if err != nil {
		return Session{}, err
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.TokenVersion, grants, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, Wrap(KindUnexpected, "sign access token", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, Wrap(KindUnexpected, "issue refresh token", err)
	}
	if err := s.tokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp, meta.IP, meta.UserAgent); err != nil {
		return Session{}, Wrap(KindUnexpected, "save refresh token", err)
	}
	return Session{
		User:           Identity{ID: u.ID, Email: u.Email},
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, nil
}
