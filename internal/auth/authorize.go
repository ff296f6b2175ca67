package auth

import (
	"context"
	"strings"
)

// Requirement is one condition a principal must satisfy: holding a role or
// holding a permission.
type Requirement struct {
	Role     string
	Resource string
	Action   string
}

// RoleRequirement requires the role named name.
func RoleRequirement(name string) Requirement {
	return Requirement{Role: strings.TrimSpace(name)}
}

// PermissionRequirement requires permission to perform action on resource.
func PermissionRequirement(resource, action string) Requirement {
	return Requirement{Resource: strings.TrimSpace(resource), Action: strings.TrimSpace(action)}
}

// String renders the requirement as role:<name> or perm:<resource>:<action>.
func (r Requirement) String() string {
	if r.Role != "" {
		return "role:" + r.Role
	}
	return "perm:" + r.Resource + ":" + r.Action
}

func (r Requirement) check(ctx context.Context, g *Graph, userID string) error {
	if r.Role != "" {
		ok, err := g.UserHasRole(ctx, userID, r.Role)
		if err != nil {
			return err
		}
		if !ok {
			return missingRole(r.Role)
		}
		return nil
	}
	ok, err := g.UserHasPermission(ctx, userID, r.Resource, r.Action)
	if err != nil {
		return err
	}
	if !ok {
		return missingPermission(r.Resource, r.Action)
	}
	return nil
}
