package auth

import (
	"context"
	"time"
)

// Queries is the persistence surface used by the auth subsystem. Lookups of
// absent rows return an error wrapping ErrNotFound; uniqueness violations
// return an error wrapping ErrConflict.
type Queries interface {
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	// UserByEmail only considers accounts that are not deleted.
	UserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context) ([]User, error)
	// LockUser serialises concurrent mutations of one account's attachments.
	LockUser(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s Session) error
	// ActiveSessionByHash returns the active session with the token hash.
	ActiveSessionByHash(ctx context.Context, tokenHash string) (Session, error)
	DeactivateSession(ctx context.Context, id string) error
	// DeactivateUserSessions deactivates every active session of the user
	// except the one with exceptHash (empty means none are spared).
	DeactivateUserSessions(ctx context.Context, userID, exceptHash string) (int64, error)
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]Session, error)
	DeactivateExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	CreateRole(ctx context.Context, r Role) error
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	UpdateRole(ctx context.Context, r Role) error
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]Role, error)

	CreatePermission(ctx context.Context, p Permission) error
	PermissionByID(ctx context.Context, id string) (Permission, error)
	PermissionByKey(ctx context.Context, resourceType, action string) (Permission, error)
	DeletePermission(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	AttachPermission(ctx context.Context, roleID, permissionID string) error
	DetachPermission(ctx context.Context, roleID, permissionID string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	AttachRole(ctx context.Context, userID, roleID string) error
	DetachRole(ctx context.Context, userID, roleID string) error
	UserRoles(ctx context.Context, userID string) ([]Role, error)

	UserHasPermission(ctx context.Context, userID, resourceType, action string) (bool, error)
	UserHasRole(ctx context.Context, userID, roleName string) (bool, error)
}

// Store hands out Queries scoped to a unit of work.
type Store interface {
	// InTx runs fn atomically: every write made through q is committed when
	// fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
