package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(SQLite.DriverName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLSnapshot_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	snap := NewSQLSnapshot(openSQLite(t), SQLite)
	require.NoError(t, snap.Prepare(ctx))

	users, err := snap.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	created := time.Date(2024, 5, 2, 8, 30, 0, 123, time.UTC)
	login := created.Add(2 * time.Hour)
	in := []*models.User{
		{ID: "z", FirstName: "Zoe", LastName: "Last", Email: "zoe@test.com", PasswordHash: "h",
			IsActive: true, CreatedAt: created, UpdatedAt: created},
		{ID: "a", FirstName: "Juan", LastName: "Perez", Email: "juan@test.com", PasswordHash: "h2",
			IsActive: false, LastLoginAt: &login, CreatedAt: created, UpdatedAt: login},
	}
	require.NoError(t, snap.Save(ctx, in))

	out, err := snap.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Save replaces, it does not append.
	require.NoError(t, snap.Save(ctx, in[1:]))
	out, err = snap.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestSQLSnapshot_StoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	s := New(NewSQLSnapshot(db, SQLite), nil)
	require.NoError(t, s.Initialize(ctx))
	u, err := s.Insert(ctx, newUser("juan@test.com"))
	require.NoError(t, err)

	reopened := New(NewSQLSnapshot(db, SQLite), nil)
	require.NoError(t, reopened.Initialize(ctx))
	got, err := reopened.FindByEmail(ctx, "JUAN@test.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
}

func TestSQLSnapshot_PrepareMigrateError(t *testing.T) {
	snap := NewSQLSnapshot(openSQLite(t), SQLite)
	snap.migrate = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	require.ErrorContains(t, snap.Prepare(context.Background()), "boom")
}

func TestSQLSnapshot_PostgresSave(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := created.Format(time.RFC3339Nano)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)).
		WithArgs("u1", 0, "Juan", "Perez", "juan@test.com", "h", true, nil, ts, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snap := NewSQLSnapshot(db, Postgres)
	err = snap.Save(context.Background(), []*models.User{{
		ID: "u1", FirstName: "Juan", LastName: "Perez", Email: "juan@test.com", PasswordHash: "h",
		IsActive: true, CreatedAt: created, UpdatedAt: created,
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSnapshot_PostgresSaveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	snap := NewSQLSnapshot(db, Postgres)
	err = snap.Save(context.Background(), []*models.User{newUser("a@test.com")})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSnapshot_PostgresLoad(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "password_hash", "is_active",
		"last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "Juan", "Perez", "juan@test.com", "h", true, "2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z").
		AddRow("u2", "Ana", "Lopez", "ana@test.com", "h", false, nil, "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z")
	mock.ExpectQuery(`SELECT .* FROM users ORDER BY position`).WillReturnRows(rows)

	out, err := NewSQLSnapshot(db, Postgres).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].LastLoginAt)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *out[0].LastLoginAt)
	assert.Nil(t, out[1].LastLoginAt)
	assert.False(t, out[1].IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSnapshot_LoadBadTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "password_hash", "is_active",
		"last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "Juan", "Perez", "juan@test.com", "h", true, nil, "yesterday", "2024-01-01T00:00:00Z")
	mock.ExpectQuery(`SELECT .* FROM users`).WillReturnRows(rows)

	_, err = NewSQLSnapshot(db, Postgres).Load(context.Background())
	require.ErrorContains(t, err, "parse time")
}

func TestStore_InitializeFailsOnDBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp), sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))

	s := New(NewSQLSnapshot(db, Postgres), nil)
	err = s.Initialize(context.Background())
	require.ErrorIs(t, err, common.ErrStorage)
	assert.ErrorContains(t, err, "refused")
}
