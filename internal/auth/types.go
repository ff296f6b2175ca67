package auth

import "time"

// User is an account that may hold sessions and roles.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	MiddleName   string     `json:"middle_name,omitempty" db:"middle_name"`
	Active       bool       `json:"active" db:"active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CanAuthenticate reports whether the account may hold a live session.
func (u User) CanAuthenticate() bool {
	return u.Active && u.DeletedAt == nil
}

// Role groups permissions.
type Role struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Permission allows one action on one resource type.
type Permission struct {
	ID           string    `json:"id" db:"id"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	Action       string    `json:"action" db:"action"`
	Description  string    `json:"description" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Key renders the permission as resource:action.
func (p Permission) Key() string {
	return p.ResourceType + ":" + p.Action
}

// Session is a server-side login. Only the hash of the bearer token is kept.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Active    bool      `json:"active" db:"active"`
}

// ExpiredAt reports whether the session is past its expiry at now.
func (s Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RoleDetail is a role with its attached permissions.
type RoleDetail struct {
	Role
	Permissions []Permission `json:"permissions"`
}

// UserDetail is a user with attached roles and the permissions they grant.
type UserDetail struct {
	User
	Roles       []Role   `json:"roles"`
	Permissions []string `json:"permissions"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
	MiddleName      string
}

// ProfileUpdate changes the fields that are set.
type ProfileUpdate struct {
	Email      *string
	FirstName  *string
	LastName   *string
	MiddleName *string
}

// RoleUpdate changes the fields that are set.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Principal is an authenticated caller.
type Principal struct {
	User    User
	Session Session
}
