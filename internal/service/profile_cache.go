package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/model"
)

// ProfileCache serves minimal user projections cache-aside. Cache
// writes are best-effort: a failed Set or Del is logged and the
// primary operation continues on the database value. Entries carry a
// safety-net TTL so a missed invalidation cannot go stale forever.
type ProfileCache struct {
	cache  cache.Cache
	users  UserStore
	ttl    time.Duration
	prefix string
}

func NewProfileCache(c cache.Cache, users UserStore, ttl time.Duration) *ProfileCache {
	return &ProfileCache{cache: c, users: users, ttl: ttl, prefix: "user:"}
}

func (p *ProfileCache) key(id uint64) string { return fmt.Sprintf("%s%d", p.prefix, id) }

// Get returns the user's profile, consulting the cache first and
// falling back to the store on a miss.
func (p *ProfileCache) Get(ctx context.Context, id uint64) (model.Profile, error) {
	if p.cache != nil {
		if raw, err := p.cache.Get(ctx, p.key(id)); err == nil {
			var prof model.Profile
			if jsonErr := json.Unmarshal([]byte(raw), &prof); jsonErr == nil {
				return prof, nil
			}
			// Corrupt entry; drop it and reload below.
			_ = p.cache.Del(ctx, p.key(id))
		} else if err != cache.ErrMiss {
			log.Printf("profile-cache: get %d failed: %v", id, err)
		}
	}

	u, err := p.users.GetByID(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}
	prof := model.Profile{
		ID:           u.ID,
		Email:        u.Email,
		IsVerified:   u.IsVerified,
		IsActive:     u.IsActive,
		TokenVersion: u.TokenVersion,
	}
	p.populate(ctx, prof)
	return prof, nil
}

func (p *ProfileCache) populate(ctx context.Context, prof model.Profile) {
	if p.cache == nil {
		return
	}
	b, err := json.Marshal(prof)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, p.key(prof.ID), string(b), p.ttl); err != nil {
		log.Printf("profile-cache: set %d failed: %v", prof.ID, err)
	}
}

// Invalidate drops the cached profile, forcing the next Get to read
// the live row. Called on sign-out and token-version bumps.
func (p *ProfileCache) Invalidate(ctx context.Context, id uint64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, p.key(id)); err != nil {
		log.Printf("profile-cache: invalidate %d failed: %v", id, err)
	}
}
