package pg

import (
	"context"
	"time"

	"gatehouse.dev/internal/auth"
)

const userColumns = `id, email, password_hash, first_name, last_name, middle_name, active, created_at, updated_at, deleted_at`

func (q *queries) CreateUser(ctx context.Context, u auth.User) error {
	_, err := q.exec(ctx, "create user", `
		insert into users (`+userColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.MiddleName, u.Active, u.CreatedAt, u.UpdatedAt, u.DeletedAt)
	return err
}

func (q *queries) UserByID(ctx context.Context, id string) (auth.User, error) {
	var u auth.User
	err := q.get(ctx, "user", &u, `select `+userColumns+` from users where id = $1`, id)
	return u, err
}

func (q *queries) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	var u auth.User
	err := q.get(ctx, "user", &u, `
		select `+userColumns+`
		from users
		where email = $1 and deleted_at is null
	`, email)
	return u, err
}

func (q *queries) UpdateUser(ctx context.Context, u auth.User) error {
	return q.execOne(ctx, "update user", `
		update users
		set email = $2, password_hash = $3, first_name = $4, last_name = $5, middle_name = $6,
		    active = $7, updated_at = $8, deleted_at = $9
		where id = $1
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.MiddleName, u.Active, u.UpdatedAt, u.DeletedAt)
}

func (q *queries) ListUsers(ctx context.Context) ([]auth.User, error) {
	out := []auth.User{}
	err := q.list(ctx, "list users", &out, `
		select `+userColumns+`
		from users
		where deleted_at is null
		order by created_at, id
	`)
	return out, err
}

func (q *queries) LockUser(ctx context.Context, id string) error {
	var locked string
	return q.get(ctx, "user", &locked, `select id from users where id = $1 for update`, id)
}

const sessionColumns = `id, user_id, token_hash, created_at, expires_at, active`

func (q *queries) CreateSession(ctx context.Context, s auth.Session) error {
	_, err := q.exec(ctx, "create session", `
		insert into sessions (`+sessionColumns+`)
		values ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.ExpiresAt, s.Active)
	return err
}

func (q *queries) ActiveSessionByHash(ctx context.Context, tokenHash string) (auth.Session, error) {
	var s auth.Session
	err := q.get(ctx, "session", &s, `
		select `+sessionColumns+`
		from sessions
		where token_hash = $1 and active
	`, tokenHash)
	return s, err
}

func (q *queries) DeactivateSession(ctx context.Context, id string) error {
	return q.execOne(ctx, "deactivate session", `update sessions set active = false where id = $1`, id)
}

func (q *queries) DeactivateUserSessions(ctx context.Context, userID, exceptHash string) (int64, error) {
	return q.exec(ctx, "deactivate user sessions", `
		update sessions
		set active = false
		where user_id = $1 and active and token_hash <> $2
	`, userID, exceptHash)
}

func (q *queries) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]auth.Session, error) {
	out := []auth.Session{}
	err := q.list(ctx, "list sessions", &out, `
		select `+sessionColumns+`
		from sessions
		where user_id = $1 and active and expires_at >= $2
		order by created_at, id
	`, userID, now)
	return out, err
}

func (q *queries) DeactivateExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return q.exec(ctx, "deactivate expired sessions", `
		update sessions
		set active = false
		where active and expires_at < $1
	`, now)
}
