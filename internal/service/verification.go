package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/utils"
)

// VerificationService issues and checks the one-time codes that gate
// account activation. Codes live in the cache under the user's email
// with a short TTL; a separate cooldown marker throttles resends
// independently of the code's own lifetime.
type VerificationService struct {
	cache    cache.Cache
	users    UserStore
	emails   EmailDispatcher
	otpTTL   time.Duration
	cooldown time.Duration
}

func NewVerificationService(c cache.Cache, users UserStore, emails EmailDispatcher, otpTTL, cooldown time.Duration) *VerificationService {
	return &VerificationService{cache: c, users: users, emails: emails, otpTTL: otpTTL, cooldown: cooldown}
}

func otpKey(email string) string      { return "otp:" + email }
func cooldownKey(email string) string { return "otp:cooldown:" + email }

// Dispatch generates a fresh OTP, stores it under the email with the
// configured TTL, arms the resend cooldown, and enqueues the
// verification email. A previously issued code is overwritten, so only
// the newest code verifies.
func (s *VerificationService) Dispatch(ctx context.Context, email string) error {
	code, err := utils.NewOTP()
	if err != nil {
		return Wrap(KindUnexpected, "generate otp", err)
	}
	if err := s.cache.Set(ctx, otpKey(email), code, s.otpTTL); err != nil {
		return Wrap(KindUnexpected, "store otp", err)
	}
	if err := s.cache.Set(ctx, cooldownKey(email), "1", s.cooldown); err != nil {
		// The OTP itself made it in; a lost cooldown marker only allows
		// an earlier resend.
		log.Printf("verification: arm cooldown for %s failed: %v", email, err)
	}
	if err := s.emails.SendVerificationEmail(ctx, email, code); err != nil {
		return Wrap(KindUnexpected, "enqueue verification email", err)
	}
	return nil
}

// Resend re-issues the OTP unless the cooldown marker is still live, in
// which case the remaining seconds are surfaced on the error.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	if email == "" {
		return E(KindValidation, "email is required")
	}
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if err == repository.ErrNotFound {
			return E(KindNotFound, "user not found")
		}
		return Wrap(KindUnexpected, "load user", err)
	}
	if _, err := s.cache.Get(ctx, cooldownKey(email)); err == nil {
		remaining := s.cooldown
		if ttl, ttlErr := s.cache.TTL(ctx, cooldownKey(email)); ttlErr == nil && ttl > 0 {
			remaining = ttl
		}
		secs := int(remaining / time.Second)
		if secs < 1 {
			secs = 1
		}
		return &Error{
			Kind:       KindRateLimited,
			Message:    fmt.Sprintf("please wait %d seconds before requesting a new code", secs),
			RetryAfter: secs,
		}
	} else if err != cache.ErrMiss {
		return Wrap(KindUnexpected, "check cooldown", err)
	}
	return s.Dispatch(ctx, email)
}

// Verify consumes the stored OTP and flips the account's verified
// flag. A missing, expired or mismatched code fails with the token
// kind. The compare runs against a plain read so a wrong guess cannot
// burn the stored code; the consume is an atomic read-and-delete, so
// concurrent submissions of the correct code see exactly one winner.
func (s *VerificationService) Verify(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return E(KindValidation, "email and code are required")
	}
	stored, err := s.cache.Get(ctx, otpKey(email))
	if err == cache.ErrMiss {
		return E(KindInvalidToken, "invalid or expired OTP")
	}
	if err != nil {
		return Wrap(KindUnexpected, "load otp", err)
	}
	if stored != code {
		return E(KindInvalidToken, "invalid or expired OTP")
	}
	taken, err := s.cache.GetDel(ctx, otpKey(email))
	if err == cache.ErrMiss {
		// Lost the race to another submission.
		return E(KindInvalidToken, "invalid or expired OTP")
	}
	if err != nil {
		return Wrap(KindUnexpected, "consume otp", err)
	}
	if taken != code {
		// The code was reissued between read and consume.
		return E(KindInvalidToken, "invalid or expired OTP")
	}
	if err := s.users.MarkVerified(ctx, email); err != nil {
		if err == repository.ErrNotFound {
			return E(KindNotFound, "user not found")
		}
		return Wrap(KindUnexpected, "mark verified", err)
	}
	return nil
}
