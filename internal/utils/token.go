package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for refresh tokens
	"encoding/hex"  // hex encoding and decoding functions
	"encoding/json" // round-trips the permission snapshot out of claims
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens

	"github.com/iliyamo/identity-service/internal/model"
)

// ErrInvalidToken is returned when an access token fails signature or
// claim validation.
var ErrInvalidToken = errors.New("invalid access token")

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and carry the identity plus a snapshot
// of the user's resolved permissions at issuance time. The snapshot is
// not re-validated against live role changes until the token expires or
// is refreshed; the staleness window is bounded by the access TTL.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims is the decoded payload of an access token.
type AccessClaims struct {
	UserID       uint64
	TokenVersion uint32
	Permissions  []model.Grant
}

// RefreshToken represents a long-lived opaque token used to obtain new
// access tokens. The Raw field contains the raw token string returned
// to the client. In the database only a SHA-256 hash of the raw string
// is stored.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user. The JWT
// includes the subject (sub), the live token version (tv), the
// permission snapshot (permissions), expiration (exp) and issued at
// (iat) claims.
func NewAccessToken(secret string, userID uint64, tokenVersion uint32, perms []model.Grant, ttlMin int) (AccessToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":         userID,
		"tv":          tokenVersion,
		"permissions": perms,
		"exp":         exp.Unix(),
		"iat":         time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates the signature and expiry of a raw access
// token and decodes its claims. Tokens signed with anything other than
// HMAC are rejected.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}

	var out AccessClaims
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return AccessClaims{}, ErrInvalidToken
	}
	out.UserID = uint64(sub)
	if tv, ok := claims["tv"].(float64); ok {
		out.TokenVersion = uint32(tv)
	}
	// MapClaims decodes the snapshot as []interface{} of maps; re-marshal
	// through JSON to get typed grants back.
	if rawPerms, ok := claims["permissions"]; ok && rawPerms != nil {
		b, err := json.Marshal(rawPerms)
		if err != nil {
			return AccessClaims{}, ErrInvalidToken
		}
		if err := json.Unmarshal(b, &out.Permissions); err != nil {
			return AccessClaims{}, ErrInvalidToken
		}
	}
	return out, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw)
// and its expiration time. The raw value is a 64-byte random string
// hex-encoded to 128 characters, i.e. 512 bits of entropy.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(64) // 64 bytes -> 128 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a
// hex string. Storing only the hash in the database prevents attackers
// from using stolen database entries to refresh sessions; it is also
// the lookup key at redemption time.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex exposes secure random hex generation for callers that need
// unguessable secrets outside of refresh tokens (OAuth-provisioned
// passwords, state nonces).
func RandomHex(n int) (string, error) { return randomHex(n) }

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
