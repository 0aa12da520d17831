package model

// Known permission actions and resources. The catalog is extensible;
// these constants cover the seeded admin surface.
const (
	ActionRead  = "read"
	ActionWrite = "write"

	ResourceAdmin = "admin"
)

// Permission represents a row in the `permissions` table. The pair
// (Action, Resource) is unique together.
//
// Fields:
//
//	ID          – primary key identifier.
//	Action      – capability verb (read, write).
//	Resource    – protected resource name (admin).
//	Description – human readable description.
type Permission struct {
	ID          uint64 `json:"id"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Description string `json:"description"`
}

// Grant is the (action, resource) pair embedded into access tokens as
// the user's permission snapshot. It deliberately omits IDs and
// descriptions to keep tokens small.
type Grant struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// Grant returns the token-sized projection of a permission.
func (p Permission) Grant() Grant {
	return Grant{Action: p.Action, Resource: p.Resource}
}
