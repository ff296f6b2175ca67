package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatehouse.dev/internal/ids"
)

// Graph answers role and permission questions and applies administrative
// mutations. Every answer reads the store; nothing is cached.
type Graph struct {
	store      Store
	now        func() time.Time
	adminRoles map[string]struct{}
	log        *zap.Logger
}

// IsProtectedRole reports whether name is a system role.
func IsProtectedRole(name string) bool {
	return name == RoleAdmin || name == RoleUser
}

// IsAdminRole reports whether name counts as administrative.
func (g *Graph) IsAdminRole(name string) bool {
	_, ok := g.adminRoles[name]
	return ok
}

// storeErr turns store sentinels into rejections about entity.
func storeErr(err error, entity, conflictMsg string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRejection(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrConflict):
		return duplicate(entity, conflictMsg)
	case errors.Is(err, ErrNotFound):
		return unknown(entity)
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// UserHasPermission reports whether any role of the user grants action on resourceType.
func (g *Graph) UserHasPermission(ctx context.Context, userID, resourceType, action string) (bool, error) {
	var ok bool
	err := g.store.View(ctx, func(q Queries) error {
		var err error
		ok, err = q.UserHasPermission(ctx, userID, resourceType, action)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return ok, nil
}

// UserHasRole reports whether the user holds the role named roleName.
func (g *Graph) UserHasRole(ctx context.Context, userID, roleName string) (bool, error) {
	var ok bool
	err := g.store.View(ctx, func(q Queries) error {
		var err error
		ok, err = q.UserHasRole(ctx, userID, roleName)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return ok, nil
}

// CreateRole adds a role with a unique name.
func (g *Graph) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, requiredField("name")
	}
	now := g.now()
	role := Role{
		ID:          ids.NewAt(now),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := g.store.InTx(ctx, func(q Queries) error {
		if _, err := q.RoleByName(ctx, name); err == nil {
			return duplicate("role", "role "+name+" already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return storeErr(q.CreateRole(ctx, role), "role", "role "+name+" already exists")
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetRole returns a role with its permissions.
func (g *Graph) GetRole(ctx context.Context, id string) (RoleDetail, error) {
	var out RoleDetail
	err := g.store.View(ctx, func(q Queries) error {
		role, err := q.RoleByID(ctx, id)
		if err != nil {
			return storeErr(err, "role", "")
		}
		perms, err := q.RolePermissions(ctx, id)
		if err != nil {
			return err
		}
		out = RoleDetail{Role: role, Permissions: perms}
		return nil
	})
	return out, err
}

// UpdateRole renames or re-describes a role. System roles keep their name.
func (g *Graph) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error) {
	var out Role
	err := g.store.InTx(ctx, func(q Queries) error {
		role, err := q.RoleByID(ctx, id)
		if err != nil {
			return storeErr(err, "role", "")
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return requiredField("name")
			}
			if name != role.Name {
				if IsProtectedRole(role.Name) {
					return ErrProtectedRole.with(func(r *Rejection) { r.Role = role.Name })
				}
				if _, err := q.RoleByName(ctx, name); err == nil {
					return duplicate("role", "role "+name+" already exists")
				} else if !errors.Is(err, ErrNotFound) {
					return err
				}
				role.Name = name
			}
		}
		if upd.Description != nil {
			role.Description = strings.TrimSpace(*upd.Description)
		}
		role.UpdatedAt = g.now()
		if err := q.UpdateRole(ctx, role); err != nil {
			return storeErr(err, "role", "role "+role.Name+" already exists")
		}
		out = role
		return nil
	})
	return out, err
}

// DeleteRole removes a role and its attachments. System roles are refused.
func (g *Graph) DeleteRole(ctx context.Context, id string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		role, err := q.RoleByID(ctx, id)
		if err != nil {
			return storeErr(err, "role", "")
		}
		if IsProtectedRole(role.Name) {
			return ErrProtectedRole.with(func(r *Rejection) { r.Role = role.Name })
		}
		return storeErr(q.DeleteRole(ctx, id), "role", "")
	})
}

// ListRoles returns every role with its permissions, ordered by name.
func (g *Graph) ListRoles(ctx context.Context) ([]RoleDetail, error) {
	var out []RoleDetail
	err := g.store.View(ctx, func(q Queries) error {
		roles, err := q.ListRoles(ctx)
		if err != nil {
			return err
		}
		out = make([]RoleDetail, 0, len(roles))
		for _, r := range roles {
			perms, err := q.RolePermissions(ctx, r.ID)
			if err != nil {
				return err
			}
			out = append(out, RoleDetail{Role: r, Permissions: perms})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return out, nil
}

// CreatePermission adds a permission with a unique (resourceType, action) pair.
func (g *Graph) CreatePermission(ctx context.Context, resourceType, action, description string) (Permission, error) {
	resourceType = strings.TrimSpace(resourceType)
	action = strings.TrimSpace(action)
	switch {
	case resourceType == "":
		return Permission{}, requiredField("resource_type")
	case action == "":
		return Permission{}, requiredField("action")
	}
	now := g.now()
	perm := Permission{
		ID:           ids.NewAt(now),
		ResourceType: resourceType,
		Action:       action,
		Description:  strings.TrimSpace(description),
		CreatedAt:    now,
	}
	msg := "permission " + perm.Key() + " already exists"
	err := g.store.InTx(ctx, func(q Queries) error {
		if _, err := q.PermissionByKey(ctx, resourceType, action); err == nil {
			return duplicate("permission", msg)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return storeErr(q.CreatePermission(ctx, perm), "permission", msg)
	})
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// DeletePermission removes a permission and detaches it from every role.
func (g *Graph) DeletePermission(ctx context.Context, id string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		if _, err := q.PermissionByID(ctx, id); err != nil {
			return storeErr(err, "permission", "")
		}
		return storeErr(q.DeletePermission(ctx, id), "permission", "")
	})
}

// ListPermissions returns the permission catalog ordered by resource and action.
func (g *Graph) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	err := g.store.View(ctx, func(q Queries) error {
		var err error
		out, err = q.ListPermissions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return out, nil
}

// AttachPermission grants a permission to a role.
func (g *Graph) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		if _, err := q.RoleByID(ctx, roleID); err != nil {
			return storeErr(err, "role", "")
		}
		if _, err := q.PermissionByID(ctx, permissionID); err != nil {
			return storeErr(err, "permission", "")
		}
		return storeErr(q.AttachPermission(ctx, roleID, permissionID), "role_permission", "permission already attached to role")
	})
}

// DetachPermission revokes a permission from a role.
func (g *Graph) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		if _, err := q.RoleByID(ctx, roleID); err != nil {
			return storeErr(err, "role", "")
		}
		if _, err := q.PermissionByID(ctx, permissionID); err != nil {
			return storeErr(err, "permission", "")
		}
		return storeErr(q.DetachPermission(ctx, roleID, permissionID), "role_permission", "")
	})
}

// AttachRole gives a role to a user.
func (g *Graph) AttachRole(ctx context.Context, userID, roleID string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		if _, err := liveUser(ctx, q, userID); err != nil {
			return err
		}
		if _, err := q.RoleByID(ctx, roleID); err != nil {
			return storeErr(err, "role", "")
		}
		return storeErr(q.AttachRole(ctx, userID, roleID), "user_role", "role already attached to user")
	})
}

// DetachRole takes a role from a user on behalf of actorID. An actor cannot
// remove their own last administrative role.
func (g *Graph) DetachRole(ctx context.Context, actorID, userID, roleID string) error {
	return g.store.InTx(ctx, func(q Queries) error {
		if _, err := liveUser(ctx, q, userID); err != nil {
			return err
		}
		role, err := q.RoleByID(ctx, roleID)
		if err != nil {
			return storeErr(err, "role", "")
		}
		if actorID == userID && g.IsAdminRole(role.Name) {
			if err := q.LockUser(ctx, userID); err != nil {
				return storeErr(err, "user", "")
			}
			held, err := q.UserRoles(ctx, userID)
			if err != nil {
				return err
			}
			admin, attached := 0, false
			for _, r := range held {
				if g.IsAdminRole(r.Name) {
					admin++
				}
				if r.ID == roleID {
					attached = true
				}
			}
			if attached && admin <= 1 {
				return ErrLastAdminRole.with(func(r *Rejection) { r.Role = role.Name })
			}
		}
		if err := q.DetachRole(ctx, userID, roleID); err != nil {
			return storeErr(err, "user_role", "")
		}
		g.log.Debug("role detached", zap.String("actor_id", actorID), zap.String("user_id", userID), zap.String("role", role.Name))
		return nil
	})
}

// ListUsers returns every account that is not deleted, with roles.
func (g *Graph) ListUsers(ctx context.Context) ([]UserDetail, error) {
	var out []UserDetail
	err := g.store.View(ctx, func(q Queries) error {
		users, err := q.ListUsers(ctx)
		if err != nil {
			return err
		}
		out = make([]UserDetail, 0, len(users))
		for _, u := range users {
			d, err := userDetail(ctx, q, u)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// GetUser returns one account that is not deleted, with roles.
func (g *Graph) GetUser(ctx context.Context, id string) (UserDetail, error) {
	var out UserDetail
	err := g.store.View(ctx, func(q Queries) error {
		u, err := liveUser(ctx, q, id)
		if err != nil {
			return err
		}
		out, err = userDetail(ctx, q, u)
		return err
	})
	return out, err
}

func liveUser(ctx context.Context, q Queries, id string) (User, error) {
	u, err := q.UserByID(ctx, id)
	if err != nil {
		return User{}, storeErr(err, "user", "")
	}
	if u.DeletedAt != nil {
		return User{}, unknown("user")
	}
	return u, nil
}

func userDetail(ctx context.Context, q Queries, u User) (UserDetail, error) {
	roles, err := q.UserRoles(ctx, u.ID)
	if err != nil {
		return UserDetail{}, err
	}
	seen := map[string]struct{}{}
	keys := []string{}
	for _, r := range roles {
		perms, err := q.RolePermissions(ctx, r.ID)
		if err != nil {
			return UserDetail{}, err
		}
		for _, p := range perms {
			if _, ok := seen[p.Key()]; ok {
				continue
			}
			seen[p.Key()] = struct{}{}
			keys = append(keys, p.Key())
		}
	}
	sort.Strings(keys)
	return UserDetail{User: u, Roles: roles, Permissions: keys}, nil
}
