package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/utils"
)

type sessionFixture struct {
	users    *memUsers
	tokens   *memTokens
	emails   *captureEmails
	sessions *SessionService
	verify   *VerificationService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	cfg := config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
	}
	users := newMemUsers()
	tokens := newMemTokens()
	emails := &captureEmails{}
	perms := &fakePerms{perms: []model.Permission{
		{ID: 1, Action: model.ActionRead, Resource: model.ResourceAdmin},
	}}
	verify := NewVerificationService(newMemCache(), users, emails, 5*time.Minute, time.Minute)
	profiles := NewProfileCache(cache.Null{}, users, time.Minute)
	sessions := NewSessionService(cfg, users, tokens,
		NewPermissionResolver(perms), profiles, verify)
	return &sessionFixture{users: users, tokens: tokens, emails: emails, sessions: sessions, verify: verify}
}

var meta = RequestMeta{IP: "203.0.113.9", UserAgent: "go-test"}

func TestSignUpValidation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.SignUp(ctx, "not-an-email", "longenough")
	assert.Equal(t, KindValidation, KindOf(err))

	// An "@" alone does not make an address.
	_, err = f.sessions.SignUp(ctx, "dangling@", "longenough")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.sessions.SignUp(ctx, "two words@example.test", "longenough")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.sessions.SignUp(ctx, "a@b.test", "short")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSignUpConflict(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.SignUp(ctx, "dup@example.test", "password1")
	require.NoError(t, err)
	_, err = f.sessions.SignUp(ctx, "dup@example.test", "password2")
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	const email = "alice@example.test"

	id, err := f.sessions.SignUp(ctx, email, "correct horse")
	require.NoError(t, err)
	require.NotZero(t, id.ID)

	// The account cannot sign in until the OTP is confirmed.
	_, err = f.sessions.SignIn(ctx, email, "correct horse", meta)
	assert.Equal(t, KindUnverified, KindOf(err))

	// The verification email is dispatched off the request path.
	require.Eventually(t, func() bool {
		return f.emails.lastOTP(email) != ""
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.verify.Verify(ctx, email, f.emails.lastOTP(email)))

	s, err := f.sessions.SignIn(ctx, email, "correct horse", meta)
	require.NoError(t, err)
	assert.Equal(t, email, s.User.Email)
	assert.NotEmpty(t, s.AccessToken)
	assert.Len(t, s.RefreshToken, 128)
	assert.Equal(t, 1, f.tokens.usableCount())

	claims, err := utils.ParseAccessToken("test-secret", s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id.ID, claims.UserID)
	assert.Equal(t, []model.Grant{{Action: model.ActionRead, Resource: model.ResourceAdmin}}, claims.Permissions)
}

func signedInUser(t *testing.T, f *sessionFixture, email string) Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.sessions.SignUp(ctx, email, "correct horse")
	require.NoError(t, err)
	require.NoError(t, f.users.MarkVerified(ctx, email))
	s, err := f.sessions.SignIn(ctx, email, "correct horse", meta)
	require.NoError(t, err)
	return s
}

func TestSignInWrongPassword(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	signedInUser(t, f, "bob@example.test")
	before := f.tokens.usableCount()

	_, err := f.sessions.SignIn(ctx, "bob@example.test", "wrong", meta)
	assert.Equal(t, KindInvalidCredential, KindOf(err))
	assert.Equal(t, before, f.tokens.usableCount(), "failed sign-in must not mint tokens")
}

func TestSignInUnknownUser(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.sessions.SignIn(context.Background(), "ghost@example.test", "whatever", meta)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSignInInactive(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "carol@example.test")
	f.users.deactivate(s.User.ID)

	_, err := f.sessions.SignIn(ctx, "carol@example.test", "correct horse", meta)
	assert.Equal(t, KindInactive, KindOf(err))
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "dave@example.test")

	next, err := f.sessions.Refresh(ctx, s.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, next.RefreshToken)
	assert.Equal(t, 1, f.tokens.usableCount(), "rotation replaces, never accumulates")

	// The redeemed token is spent.
	_, err = f.sessions.Refresh(ctx, s.RefreshToken, meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))

	// The replacement still works.
	_, err = f.sessions.Refresh(ctx, next.RefreshToken, meta)
	require.NoError(t, err)
}

func TestRefreshGarbageToken(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Refresh(ctx, "", meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))

	_, err = f.sessions.Refresh(ctx, "completely-made-up", meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "erin@example.test")

	raw, err := utils.NewRefreshToken(0)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Store(ctx, s.User.ID, utils.HashRefreshRaw(raw.Raw),
		time.Now().UTC().Add(-time.Hour), meta.IP, meta.UserAgent))

	_, err = f.sessions.Refresh(ctx, raw.Raw, meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestRefreshInactiveUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "frank@example.test")
	f.users.deactivate(s.User.ID)

	_, err := f.sessions.Refresh(ctx, s.RefreshToken, meta)
	assert.Equal(t, KindInactive, KindOf(err))
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "grace@example.test")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sessions.Refresh(ctx, s.RefreshToken, meta)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, KindInvalidToken, KindOf(err))
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent redemption may succeed")
}

func TestSignOutInvalidatesEverything(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s := signedInUser(t, f, "heidi@example.test")
	// A second sign-in stands in for another device.
	other, err := f.sessions.SignIn(ctx, "heidi@example.test", "correct horse", meta)
	require.NoError(t, err)

	require.NoError(t, f.sessions.SignOut(ctx, s.User.ID))

	// Every refresh token is revoked, not just the caller's.
	_, err = f.sessions.Refresh(ctx, s.RefreshToken, meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))
	_, err = f.sessions.Refresh(ctx, other.RefreshToken, meta)
	assert.Equal(t, KindInvalidToken, KindOf(err))
	assert.Equal(t, 0, f.tokens.usableCount())

	// Outstanding access tokens carry a stale version.
	u, err := f.users.GetByID(ctx, s.User.ID)
	require.NoError(t, err)
	claims, err := utils.ParseAccessToken("test-secret", s.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, u.TokenVersion, claims.TokenVersion)
}

func TestOAuthLoginProvisionsVerifiedUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	const email = "new@external.test"

	s, err := f.sessions.OAuthLogin(ctx, email, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, s.AccessToken)

	u, err := f.users.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, u.IsVerified, "provider-proven emails skip OTP")

	// Second login reuses the account.
	again, err := f.sessions.OAuthLogin(ctx, email, meta)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.User.ID)
}

func TestOAuthLoginInactiveUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s, err := f.sessions.OAuthLogin(ctx, "locked@external.test", meta)
	require.NoError(t, err)
	f.users.deactivate(s.User.ID)

	_, err = f.sessions.OAuthLogin(ctx, "locked@external.test", meta)
	assert.Equal(t, KindInactive, KindOf(err))
}
