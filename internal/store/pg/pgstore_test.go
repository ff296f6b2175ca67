package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "pgx")), mock
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into users")).
		WithArgs("u1", "a@example.com", "hash", "A", "B", "", true, now, now, nil).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_live_key"})
	mock.ExpectRollback()

	err := store.InTx(ctx, func(q auth.Queries) error {
		return q.CreateUser(ctx, auth.User{ID: "u1", Email: "a@example.com", PasswordHash: "hash",
			FirstName: "A", LastName: "B", Active: true, CreatedAt: now, UpdatedAt: now})
	})
	require.ErrorIs(t, err, auth.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachRoleMapsForeignKeyViolation(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into user_roles")).
		WithArgs("u1", "missing").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	err := store.InTx(ctx, func(q auth.Queries) error {
		return q.AttachRole(ctx, "u1", "missing")
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByEmailScansRow(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "first_name", "last_name", "middle_name", "active", "created_at", "updated_at", "deleted_at"}).
		AddRow("u1", "a@example.com", "hash", "A", "B", "", true, now, now, nil)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from users")).WithArgs("a@example.com").WillReturnRows(rows)
	mock.ExpectCommit()

	var got auth.User
	err := store.View(ctx, func(q auth.Queries) error {
		var err error
		got, err = q.UserByEmail(ctx, "a@example.com")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)
	require.True(t, got.Active)
	require.Nil(t, got.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingRowIsNotFound(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from sessions")).WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "active"}))
	mock.ExpectRollback()

	err := store.View(ctx, func(q auth.Queries) error {
		_, err := q.ActiveSessionByHash(ctx, "deadbeef")
		return err
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetachWithoutRowsIsNotFound(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("delete from role_permissions")).WithArgs("r1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTx(ctx, func(q auth.Queries) error {
		return q.DetachPermission(ctx, "r1", "p1")
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUserSessionsCountsRows(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("update sessions")).WithArgs("u1", "keep").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	var n int64
	err := store.InTx(ctx, func(q auth.Queries) error {
		var err error
		n, err = q.DeactivateUserSessions(ctx, "u1", "keep")
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserHasPermission(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select exists")).WithArgs("u1", "articles", "read").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	var ok bool
	err := store.View(ctx, func(q auth.Queries) error {
		var err error
		ok, err = q.UserHasPermission(ctx, "u1", "articles", "read")
		return err
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRolesEmptyIsNotNil(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from roles order by name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))
	mock.ExpectCommit()

	var roles []auth.Role
	err := store.View(ctx, func(q auth.Queries) error {
		var err error
		roles, err = q.ListRoles(ctx)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, roles)
	require.Empty(t, roles)
}

func TestBeginFailureIsWrapped(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("connection refused")
	mock.ExpectBegin().WillReturnError(boom)

	err := store.InTx(context.Background(), func(auth.Queries) error { return nil })
	require.ErrorIs(t, err, boom)
	require.Nil(t, auth.KindOf(err))
}
