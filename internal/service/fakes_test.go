package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/repository"
)

// memUsers is an in-memory UserStore mirroring the repository's
// sentinel error contract.
type memUsers struct {
	mu    sync.Mutex
	seq   uint64
	users map[uint64]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[uint64]*model.User)}
}

func (m *memUsers) create(email, hash string, verified bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return 0, repository.ErrDuplicate
		}
	}
	m.seq++
	m.users[m.seq] = &model.User{
		ID:           m.seq,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   verified,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	return m.seq, nil
}

func (m *memUsers) Create(_ context.Context, email, hash string) (uint64, error) {
	return m.create(email, hash, false)
}

func (m *memUsers) CreateVerified(_ context.Context, email, hash string) (uint64, error) {
	return m.create(email, hash, true)
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) MarkVerified(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u.IsVerified = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memUsers) BumpTokenVersion(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TokenVersion++
	return nil
}

func (m *memUsers) deactivate(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = false
	}
}

// memTokens is an in-memory TokenStore. Rotate holds the lock for the
// whole check-revoke-insert sequence, matching the transactional
// guarantee of the SQL implementation.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{rows: make(map[string]*model.RefreshToken)}
}

func (m *memTokens) Store(_ context.Context, userID uint64, hash string, exp time.Time, ip, ua string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[hash] = &model.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: exp,
		IPAddress: ip,
		UserAgent: ua,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memTokens) FindActive(_ context.Context, hash string) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[hash]
	if !ok || !row.Usable(time.Now().UTC()) {
		return model.RefreshToken{}, repository.ErrTokenInvalid
	}
	return *row, nil
}

func (m *memTokens) Rotate(_ context.Context, oldHash string, userID uint64, newHash string, exp time.Time, ip, ua string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[oldHash]
	if !ok || !row.Usable(time.Now().UTC()) {
		return repository.ErrTokenInvalid
	}
	now := time.Now().UTC()
	row.RevokedAt = &now
	m.rows[newHash] = &model.RefreshToken{
		UserID:    userID,
		TokenHash: newHash,
		ExpiresAt: exp,
		IPAddress: ip,
		UserAgent: ua,
		CreatedAt: now,
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, row := range m.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokens) usableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, row := range m.rows {
		if row.Usable(now) {
			n++
		}
	}
	return n
}

// fakePerms serves a fixed permission list for every user.
type fakePerms struct {
	perms []model.Permission
}

func (f *fakePerms) ListByUserID(context.Context, uint64) ([]model.Permission, error) {
	return f.perms, nil
}

// captureEmails records dispatched verification emails so tests can
// read back the OTP.
type captureEmails struct {
	mu   sync.Mutex
	sent []struct{ To, OTP string }
}

func (c *captureEmails) SendVerificationEmail(_ context.Context, to, otp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, struct{ To, OTP string }{to, otp})
	return nil
}

func (c *captureEmails) lastOTP(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].To == to {
			return c.sent[i].OTP
		}
	}
	return ""
}

// memCache is a map-backed cache.Cache with TTL bookkeeping.
type memCache struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string), expires: make(map[string]time.Time)}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expires[key]; ok && time.Now().After(exp) {
		delete(c.values, key)
		delete(c.expires, key)
	}
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *memCache) GetDel(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expires[key]; ok && time.Now().After(exp) {
		delete(c.values, key)
		delete(c.expires, key)
	}
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	delete(c.values, key)
	delete(c.expires, key)
	return v, nil
}

func (c *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	if ttl > 0 {
		c.expires[key] = time.Now().Add(ttl)
	} else {
		delete(c.expires, key)
	}
	return nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.expires, key)
	return nil
}

func (c *memCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expires[key]
	if !ok {
		return -2 * time.Second, nil
	}
	return time.Until(exp), nil
}
