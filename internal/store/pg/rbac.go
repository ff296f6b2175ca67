package pg

import (
	"context"

	"gatehouse.dev/internal/auth"
)

const roleColumns = `id, name, description, created_at, updated_at`

func (q *queries) CreateRole(ctx context.Context, r auth.Role) error {
	_, err := q.exec(ctx, "create role", `
		insert into roles (`+roleColumns+`)
		values ($1, $2, $3, $4, $5)
	`, r.ID, r.Name, r.Description, r.CreatedAt, r.UpdatedAt)
	return err
}

func (q *queries) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	var r auth.Role
	err := q.get(ctx, "role", &r, `select `+roleColumns+` from roles where id = $1`, id)
	return r, err
}

func (q *queries) RoleByName(ctx context.Context, name string) (auth.Role, error) {
	var r auth.Role
	err := q.get(ctx, "role", &r, `select `+roleColumns+` from roles where name = $1`, name)
	return r, err
}

func (q *queries) UpdateRole(ctx context.Context, r auth.Role) error {
	return q.execOne(ctx, "update role", `
		update roles set name = $2, description = $3, updated_at = $4 where id = $1
	`, r.ID, r.Name, r.Description, r.UpdatedAt)
}

func (q *queries) DeleteRole(ctx context.Context, id string) error {
	return q.execOne(ctx, "delete role", `delete from roles where id = $1`, id)
}

func (q *queries) ListRoles(ctx context.Context) ([]auth.Role, error) {
	out := []auth.Role{}
	err := q.list(ctx, "list roles", &out, `select `+roleColumns+` from roles order by name`)
	return out, err
}

const permissionColumns = `id, resource_type, action, description, created_at`

func (q *queries) CreatePermission(ctx context.Context, p auth.Permission) error {
	_, err := q.exec(ctx, "create permission", `
		insert into permissions (`+permissionColumns+`)
		values ($1, $2, $3, $4, $5)
	`, p.ID, p.ResourceType, p.Action, p.Description, p.CreatedAt)
	return err
}

func (q *queries) PermissionByID(ctx context.Context, id string) (auth.Permission, error) {
	var p auth.Permission
	err := q.get(ctx, "permission", &p, `select `+permissionColumns+` from permissions where id = $1`, id)
	return p, err
}

func (q *queries) PermissionByKey(ctx context.Context, resourceType, action string) (auth.Permission, error) {
	var p auth.Permission
	err := q.get(ctx, "permission", &p, `
		select `+permissionColumns+`
		from permissions
		where resource_type = $1 and action = $2
	`, resourceType, action)
	return p, err
}

func (q *queries) DeletePermission(ctx context.Context, id string) error {
	return q.execOne(ctx, "delete permission", `delete from permissions where id = $1`, id)
}

func (q *queries) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	out := []auth.Permission{}
	err := q.list(ctx, "list permissions", &out, `
		select `+permissionColumns+` from permissions order by resource_type, action
	`)
	return out, err
}

func (q *queries) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := q.exec(ctx, "attach permission", `
		insert into role_permissions (role_id, permission_id) values ($1, $2)
	`, roleID, permissionID)
	return err
}

func (q *queries) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	return q.execOne(ctx, "detach permission", `
		delete from role_permissions where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
}

func (q *queries) RolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	out := []auth.Permission{}
	err := q.list(ctx, "role permissions", &out, `
		select p.id, p.resource_type, p.action, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource_type, p.action
	`, roleID)
	return out, err
}

func (q *queries) AttachRole(ctx context.Context, userID, roleID string) error {
	_, err := q.exec(ctx, "attach role", `
		insert into user_roles (user_id, role_id) values ($1, $2)
	`, userID, roleID)
	return err
}

func (q *queries) DetachRole(ctx context.Context, userID, roleID string) error {
	return q.execOne(ctx, "detach role", `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
}

func (q *queries) UserRoles(ctx context.Context, userID string) ([]auth.Role, error) {
	out := []auth.Role{}
	err := q.list(ctx, "user roles", &out, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	return out, err
}

func (q *queries) UserHasPermission(ctx context.Context, userID, resourceType, action string) (bool, error) {
	return q.exists(ctx, "check permission", `
		select exists (
			select 1
			from user_roles ur
			join role_permissions rp on rp.role_id = ur.role_id
			join permissions p on p.id = rp.permission_id
			where ur.user_id = $1 and p.resource_type = $2 and p.action = $3
		)
	`, userID, resourceType, action)
}

func (q *queries) UserHasRole(ctx context.Context, userID, roleName string) (bool, error) {
	return q.exists(ctx, "check role", `
		select exists (
			select 1
			from user_roles ur
			join roles r on r.id = ur.role_id
			where ur.user_id = $1 and r.name = $2
		)
	`, userID, roleName)
}
