package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/model"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	perms := []model.Grant{
		{Action: model.ActionRead, Resource: model.ResourceAdmin},
		{Action: model.ActionWrite, Resource: model.ResourceAdmin},
	}
	tok, err := NewAccessToken("secret", 42, 3, perms, 15)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, uint32(3), claims.TokenVersion)
	assert.Equal(t, perms, claims.Permissions)
}

func TestAccessTokenEmptyPermissions(t *testing.T) {
	tok, err := NewAccessToken("secret", 7, 0, nil, 15)
	require.NoError(t, err)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Empty(t, claims.Permissions)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, 0, nil, 15)
	require.NoError(t, err)

	_, err = ParseAccessToken("other-secret", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenExpired(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, 0, nil, -1)
	require.NoError(t, err)

	_, err = ParseAccessToken("secret", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenGarbage(t *testing.T) {
	_, err := ParseAccessToken("secret", "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	require.NoError(t, err)
	b, err := NewRefreshToken(7)
	require.NoError(t, err)

	// 64 random bytes hex-encoded.
	assert.Len(t, a.Raw, 128)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), a.Exp, 5*time.Second)
}

func TestHashRefreshRaw(t *testing.T) {
	h := HashRefreshRaw("raw-token")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashRefreshRaw("raw-token"))
	assert.NotEqual(t, h, HashRefreshRaw("raw-token2"))
	assert.NotContains(t, h, "raw-token")
}

func TestRandomHex(t *testing.T) {
	s, err := RandomHex(32)
	require.NoError(t, err)
	assert.Len(t, s, 64)
}
