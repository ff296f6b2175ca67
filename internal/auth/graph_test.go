package auth

import (
	"context"
	"errors"
	"testing"
)

func TestPermissionResolutionThroughRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()

	perm, err := g.CreatePermission(ctx, "articles", "read", "read articles")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	reader := f.role(t, "reader")
	if err := g.AttachPermission(ctx, reader.ID, perm.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	u := f.register(t, "alice@example.com", "reader")

	ok, err := g.UserHasPermission(ctx, u.ID, "articles", "read")
	if err != nil || !ok {
		t.Fatalf("expected permission, ok=%v err=%v", ok, err)
	}
	for _, pair := range [][2]string{{"articles", "create"}, {"documents", "read"}, {"Articles", "read"}} {
		if ok, _ := g.UserHasPermission(ctx, u.ID, pair[0], pair[1]); ok {
			t.Fatalf("unexpected permission %v", pair)
		}
	}

	// Revocation is visible on the next check.
	if err := g.DetachPermission(ctx, reader.ID, perm.ID); err != nil {
		t.Fatalf("DetachPermission: %v", err)
	}
	if ok, _ := g.UserHasPermission(ctx, u.ID, "articles", "read"); ok {
		t.Fatalf("permission should be gone after detach")
	}
}

func TestUserHasRoleIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice@example.com", "editor")
	g := f.svc.Graph()
	if ok, _ := g.UserHasRole(context.Background(), u.ID, "editor"); !ok {
		t.Fatalf("expected role")
	}
	if ok, _ := g.UserHasRole(context.Background(), u.ID, "Editor"); ok {
		t.Fatalf("role match must be exact")
	}
}

func TestRoleAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()

	r, err := g.CreateRole(ctx, "  auditor ", "reads logs")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if r.Name != "auditor" {
		t.Fatalf("name not trimmed: %q", r.Name)
	}
	if _, err := g.CreateRole(ctx, "auditor", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := g.CreateRole(ctx, " ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	other := f.role(t, "viewer")
	name := "viewer"
	if _, err := g.UpdateRole(ctx, r.ID, RoleUpdate{Name: &name}); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename onto existing name should conflict, got %v", err)
	}
	name = "inspector"
	desc := "inspects"
	updated, err := g.UpdateRole(ctx, r.ID, RoleUpdate{Name: &name, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Name != "inspector" || updated.Description != "inspects" {
		t.Fatalf("unexpected role %+v", updated)
	}

	roles, err := g.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "inspector" || roles[1].Name != "viewer" {
		t.Fatalf("unexpected roles %+v", roles)
	}

	if err := g.DeleteRole(ctx, other.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if err := g.DeleteRole(ctx, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
	if _, err := g.GetRole(ctx, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProtectedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()
	for _, name := range []string{RoleAdmin, RoleUser} {
		r := f.role(t, name)
		if err := g.DeleteRole(ctx, r.ID); !errors.Is(err, ErrProtectedRole) {
			t.Fatalf("delete %s: expected ErrProtectedRole, got %v", name, err)
		}
		renamed := name + "2"
		if _, err := g.UpdateRole(ctx, r.ID, RoleUpdate{Name: &renamed}); !errors.Is(err, ErrProtectedRole) {
			t.Fatalf("rename %s: expected ErrProtectedRole, got %v", name, err)
		}
		desc := "still here"
		if _, err := g.UpdateRole(ctx, r.ID, RoleUpdate{Description: &desc}); err != nil {
			t.Fatalf("describing %s should be allowed: %v", name, err)
		}
	}
}

func TestDeleteRoleCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()
	perm, _ := g.CreatePermission(ctx, "reports", "read", "")
	r := f.role(t, "analyst")
	if err := g.AttachPermission(ctx, r.ID, perm.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	u := f.register(t, "alice@example.com", "analyst")

	if err := g.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if ok, _ := g.UserHasPermission(ctx, u.ID, "reports", "read"); ok {
		t.Fatalf("permission survived role deletion")
	}
	detail, err := g.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(detail.Roles) != 0 {
		t.Fatalf("user still holds deleted role: %+v", detail.Roles)
	}
}

func TestPermissionAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()

	p, err := g.CreatePermission(ctx, "documents", "update", "")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if _, err := g.CreatePermission(ctx, "documents", "update", "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := g.CreatePermission(ctx, "documents", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := g.CreatePermission(ctx, "articles", "create", ""); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	list, _ := g.ListPermissions(ctx)
	if len(list) != 2 || list[0].Key() != "articles:create" || list[1].Key() != "documents:update" {
		t.Fatalf("unexpected order %+v", list)
	}

	r := f.role(t, "writer")
	if err := g.AttachPermission(ctx, r.ID, p.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	if err := g.AttachPermission(ctx, r.ID, p.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate attach should conflict, got %v", err)
	}
	if err := g.AttachPermission(ctx, r.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := g.DeletePermission(ctx, p.ID); err != nil {
		t.Fatalf("DeletePermission: %v", err)
	}
	detail, _ := g.GetRole(ctx, r.ID)
	if len(detail.Permissions) != 0 {
		t.Fatalf("deleted permission still attached")
	}
	if err := g.DetachPermission(ctx, r.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttachDetachRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.svc.Graph()
	admin := f.register(t, "admin@example.com", RoleAdmin)
	u := f.register(t, "bob@example.com")
	editor := f.role(t, "editor")

	if err := g.AttachRole(ctx, u.ID, editor.ID); err != nil {
		t.Fatalf("AttachRole: %v", err)
	}
	if err := g.AttachRole(ctx, u.ID, editor.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := g.AttachRole(ctx, "nobody", editor.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := g.DetachRole(ctx, admin.ID, u.ID, editor.ID); err != nil {
		t.Fatalf("DetachRole: %v", err)
	}
	if err := g.DetachRole(ctx, admin.ID, u.ID, editor.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for absent attachment, got %v", err)
	}
}

func TestLastAdminRoleSelfProtection(t *testing.T) {
	f := newFixture(t, WithAdminRoles(RoleAdmin, "superadmin"))
	ctx := context.Background()
	g := f.svc.Graph()
	a := f.register(t, "a@example.com", RoleAdmin)
	b := f.register(t, "b@example.com", RoleAdmin)
	adminRole := f.role(t, RoleAdmin)

	err := g.DetachRole(ctx, a.ID, a.ID, adminRole.ID)
	if !errors.Is(err, ErrLastAdminRole) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrLastAdminRole, got %v", err)
	}
	if ok, _ := g.UserHasRole(ctx, a.ID, RoleAdmin); !ok {
		t.Fatalf("admin role should remain")
	}

	// Another admin may remove it.
	if err := g.DetachRole(ctx, b.ID, a.ID, adminRole.ID); err != nil {
		t.Fatalf("detach by other admin: %v", err)
	}

	// With two administrative roles, dropping one of them is allowed.
	super := f.role(t, "superadmin")
	if err := g.AttachRole(ctx, b.ID, super.ID); err != nil {
		t.Fatalf("AttachRole: %v", err)
	}
	if err := g.DetachRole(ctx, b.ID, b.ID, adminRole.ID); err != nil {
		t.Fatalf("non-last admin role should detach: %v", err)
	}
	if err := g.DetachRole(ctx, b.ID, b.ID, super.ID); !errors.Is(err, ErrLastAdminRole) {
		t.Fatalf("expected ErrLastAdminRole, got %v", err)
	}
}

func TestListUsersIncludesRolesAndSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	perm, _ := f.svc.Graph().CreatePermission(ctx, "articles", "read", "")
	editor := f.role(t, "editor")
	_ = f.svc.Graph().AttachPermission(ctx, editor.ID, perm.ID)
	f.register(t, "a@example.com", "editor")
	gone := f.register(t, "b@example.com")
	_, p := f.login(t, "b@example.com")
	if err := f.svc.DeactivateAccount(ctx, p); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}

	users, err := f.svc.Graph().ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].Email != "a@example.com" {
		t.Fatalf("unexpected users %+v", users)
	}
	if len(users[0].Roles) != 1 || users[0].Roles[0].Name != "editor" {
		t.Fatalf("roles missing: %+v", users[0].Roles)
	}
	if len(users[0].Permissions) != 1 || users[0].Permissions[0] != "articles:read" {
		t.Fatalf("permissions missing: %+v", users[0].Permissions)
	}
	if _, err := f.svc.Graph().GetUser(ctx, gone.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted user should be not found, got %v", err)
	}
}
