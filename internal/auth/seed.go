package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gatehouse.dev/internal/ids"
)

// BootstrapOptions controls the initial data written by Bootstrap.
type BootstrapOptions struct {
	AdminEmail    string
	AdminPassword string
	// SeedDemo adds the demo accounts for each built-in role.
	SeedDemo bool
}

type seedRole struct {
	name        string
	description string
	perms       []string
}

var seedResources = []string{"articles", "documents", "reports"}
var seedActions = []string{"create", "read", "update", "delete"}

var seedRoles = []seedRole{
	{name: RoleAdmin, description: "System administrator with full rights"},
	{name: RoleUser, description: "Regular user with basic rights", perms: []string{"articles:read", "documents:read"}},
	{name: "editor", description: "Content editor", perms: []string{
		"articles:create", "articles:read", "articles:update",
		"documents:create", "documents:read", "documents:update",
	}},
	{name: "manager", description: "Manager with access to reports", perms: []string{
		"articles:read", "documents:read",
		"reports:create", "reports:read", "reports:update",
	}},
}

type seedUser struct {
	in    RegisterInput
	roles []string
}

var demoUsers = []seedUser{
	{in: RegisterInput{Email: "user@example.com", Password: "user123", FirstName: "Ivan", LastName: "Ivanov"}, roles: []string{RoleUser}},
	{in: RegisterInput{Email: "editor@example.com", Password: "editor123", FirstName: "Maria", LastName: "Editor"}, roles: []string{"editor"}},
	{in: RegisterInput{Email: "manager@example.com", Password: "manager123", FirstName: "Petr", LastName: "Manager"}, roles: []string{"manager"}},
	{in: RegisterInput{Email: "multirole@example.com", Password: "multi123", FirstName: "Olga", LastName: "Multirole"}, roles: []string{"editor", "manager"}},
}

// Bootstrap creates the permission catalog, the built-in roles and the
// configured accounts. Existing rows are left untouched, so it can run on
// every start.
func Bootstrap(ctx context.Context, svc *Service, opts BootstrapOptions) error {
	users := []seedUser{}
	if opts.AdminEmail != "" {
		users = append(users, seedUser{
			in:    RegisterInput{Email: opts.AdminEmail, Password: opts.AdminPassword, FirstName: "System", LastName: "Administrator"},
			roles: []string{RoleAdmin},
		})
	}
	if opts.SeedDemo {
		users = append(users, demoUsers...)
	}
	hashes := make([]string, len(users))
	for i := range users {
		users[i].in.normalize()
		if err := users[i].in.validate(); err != nil {
			return fmt.Errorf("bootstrap account %s: %w", users[i].in.Email, err)
		}
	}

	created := 0
	err := svc.store.InTx(ctx, func(q Queries) error {
		now := svc.clock()
		perms := map[string]Permission{}
		for _, res := range seedResources {
			for _, act := range seedActions {
				p, err := q.PermissionByKey(ctx, res, act)
				if errors.Is(err, ErrNotFound) {
					p = Permission{ID: ids.NewAt(now), ResourceType: res, Action: act,
						Description: act + " " + res, CreatedAt: now}
					err = q.CreatePermission(ctx, p)
				}
				if err != nil {
					return fmt.Errorf("seed permission %s:%s: %w", res, act, err)
				}
				perms[p.Key()] = p
			}
		}

		roles := map[string]Role{}
		for _, sr := range seedRoles {
			r, err := q.RoleByName(ctx, sr.name)
			if errors.Is(err, ErrNotFound) {
				r = Role{ID: ids.NewAt(now), Name: sr.name, Description: sr.description, CreatedAt: now, UpdatedAt: now}
				if err = q.CreateRole(ctx, r); err == nil {
					err = attachSeedPermissions(ctx, q, r, sr, perms)
				}
			}
			if err != nil {
				return fmt.Errorf("seed role %s: %w", sr.name, err)
			}
			roles[sr.name] = r
		}

		for i, su := range users {
			if _, err := q.UserByEmail(ctx, su.in.Email); err == nil {
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
			if hashes[i] == "" {
				h, err := svc.hasher.Hash(su.in.Password)
				if err != nil {
					return fmt.Errorf("hash password: %w", err)
				}
				hashes[i] = h
			}
			u, err := svc.register(ctx, q, su.in, hashes[i])
			if err != nil {
				return fmt.Errorf("seed account %s: %w", su.in.Email, err)
			}
			for _, name := range su.roles {
				if err := q.AttachRole(ctx, u.ID, roles[name].ID); err != nil {
					return fmt.Errorf("seed account %s role %s: %w", su.in.Email, name, err)
				}
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}
	svc.log.Info("bootstrap complete", zap.Int("accounts_created", created))
	return nil
}

func attachSeedPermissions(ctx context.Context, q Queries, r Role, sr seedRole, perms map[string]Permission) error {
	keys := sr.perms
	if sr.name == RoleAdmin {
		keys = make([]string, 0, len(perms))
		for k := range perms {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if err := q.AttachPermission(ctx, r.ID, perms[k].ID); err != nil {
			return err
		}
	}
	return nil
}
