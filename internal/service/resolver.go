package service

import (
	"context"

	"github.com/iliyamo/identity-service/internal/model"
)

// PermissionResolver computes the permission set embedded into access
// tokens: every permission reachable from the user's roles, with
// duplicates collapsed.
type PermissionResolver struct {
	perms PermissionSource
}

func NewPermissionResolver(perms PermissionSource) *PermissionResolver {
	return &PermissionResolver{perms: perms}
}

// Resolve returns the de-duplicated (action, resource) grants for a
// user. A user without roles resolves to an empty set, not an error.
func (r *PermissionResolver) Resolve(ctx context.Context, userID uint64) ([]model.Grant, error) {
	perms, err := r.perms.ListByUserID(ctx, userID)
	if err != nil {
		return nil, Wrap(KindUnexpected, "resolve permissions", err)
	}
	seen := make(map[model.Grant]bool, len(perms))
	grants := make([]model.Grant, 0, len(perms))
	for _, p := range perms {
		g := p.Grant()
		if seen[g] {
			continue
		}
		seen[g] = true
		grants = append(grants, g)
	}
	return grants, nil
}
