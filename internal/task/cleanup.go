// Package task holds background maintenance jobs that run alongside
// the HTTP server.
package task

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/identity-service/internal/repository"
)

// Janitor periodically removes rows that no longer serve any request
// path: expired or revoked refresh tokens, and accounts that signed
// up but never verified their email.
type Janitor struct {
	Tokens        *repository.TokenRepo
	Users         *repository.UserRepo
	SweepInterval time.Duration
	UnverifiedAge time.Duration
}

func NewJanitor(tokens *repository.TokenRepo, users *repository.UserRepo, sweepInterval, unverifiedAge time.Duration) *Janitor {
	return &Janitor{Tokens: tokens, Users: users, SweepInterval: sweepInterval, UnverifiedAge: unverifiedAge}
}

// Run blocks until ctx is cancelled, sweeping once per interval. An
// immediate first sweep clears whatever accumulated while the service
// was down.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.SweepInterval)
	defer ticker.Stop()
	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokens, err := j.Tokens.DeleteExpired(sctx)
	if err != nil {
		log.Printf("[janitor] token sweep failed: %v", err)
	}
	cutoff := time.Now().UTC().Add(-j.UnverifiedAge)
	users, err := j.Users.DeleteUnverifiedBefore(sctx, cutoff)
	if err != nil {
		log.Printf("[janitor] unverified user sweep failed: %v", err)
	}
	if tokens > 0 || users > 0 {
		log.Printf("[janitor] removed %d dead refresh tokens, %d stale unverified accounts", tokens, users)
	}
}
