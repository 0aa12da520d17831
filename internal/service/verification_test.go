package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/cache"
)

func newVerificationFixture(t *testing.T) (*VerificationService, *memUsers, *captureEmails, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	users := newMemUsers()
	emails := &captureEmails{}
	svc := NewVerificationService(store, users, emails, 5*time.Minute, time.Minute)
	return svc, users, emails, mr
}

func TestVerifyHappyPath(t *testing.T) {
	svc, users, emails, _ := newVerificationFixture(t)
	ctx := context.Background()
	const email = "alice@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(ctx, email))
	code := emails.lastOTP(email)
	require.Len(t, code, 6)

	require.NoError(t, svc.Verify(ctx, email, code))
	u, err := users.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)

	// The code is consumed on success and cannot be replayed.
	err = svc.Verify(ctx, email, code)
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestVerifyConcurrentSingleWinner(t *testing.T) {
	svc, users, emails, _ := newVerificationFixture(t)
	ctx := context.Background()
	const email = "frank@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(ctx, email))
	code := emails.lastOTP(email)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Verify(ctx, email, code)
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
	assert.Equal(t, 1, wins, "the code may be consumed exactly once")
}

func TestVerifyWrongCode(t *testing.T) {
	svc, users, emails, _ := newVerificationFixture(t)
	ctx := context.Background()
	const email = "bob@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(ctx, email))

	err = svc.Verify(ctx, email, "000000")
	if emails.lastOTP(email) == "000000" {
		t.Skip("generated code collided with the guess")
	}
	assert.Equal(t, KindInvalidToken, KindOf(err))

	u, err := users.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.False(t, u.IsVerified, "wrong code must not verify")
}

func TestVerifyExpiredCode(t *testing.T) {
	svc, users, emails, mr := newVerificationFixture(t)
	ctx := context.Background()
	const email = "carol@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(ctx, email))

	mr.FastForward(6 * time.Minute)

	err = svc.Verify(ctx, email, emails.lastOTP(email))
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestResendCooldown(t *testing.T) {
	svc, users, _, mr := newVerificationFixture(t)
	ctx := context.Background()
	const email = "dave@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)
	require.NoError(t, svc.Dispatch(ctx, email))

	err = svc.Resend(ctx, email)
	require.Equal(t, KindRateLimited, KindOf(err))
	de, ok := AsError(err)
	require.True(t, ok)
	assert.Greater(t, de.RetryAfter, 0)
	assert.LessOrEqual(t, de.RetryAfter, 60)

	// Once the marker expires a resend issues a fresh code.
	mr.FastForward(61 * time.Second)
	require.NoError(t, svc.Resend(ctx, email))
}

func TestResendReplacesCode(t *testing.T) {
	svc, users, emails, mr := newVerificationFixture(t)
	ctx := context.Background()
	const email = "erin@example.test"
	_, err := users.Create(ctx, email, "hash")
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(ctx, email))
	first := emails.lastOTP(email)

	mr.FastForward(61 * time.Second)
	require.NoError(t, svc.Resend(ctx, email))
	second := emails.lastOTP(email)

	if first == second {
		t.Skip("consecutive codes collided")
	}
	// Only the newest code verifies.
	err = svc.Verify(ctx, email, first)
	assert.Equal(t, KindInvalidToken, KindOf(err))
	require.NoError(t, svc.Verify(ctx, email, second))
}

func TestResendUnknownUser(t *testing.T) {
	svc, _, _, _ := newVerificationFixture(t)
	err := svc.Resend(context.Background(), "ghost@example.test")
	assert.Equal(t, KindNotFound, KindOf(err))
}
