package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SecondOwnerOfFileIsRefused(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	server := New(NewFileSnapshot(path), nil)
	require.NoError(t, server.Initialize(ctx))
	t.Cleanup(func() { server.Close() })
	u, err := server.Insert(ctx, newUser("juan@test.com"))
	require.NoError(t, err)

	tool := New(NewFileSnapshot(path), nil)
	err = tool.Initialize(ctx)
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, err, common.ErrStorage)
	assert.False(t, tool.Stats().Initialized)
	assert.FileExists(t, path+".lock")

	// The server keeps writing; nothing else can have replaced the file.
	now := server.now()
	_, err = server.Update(ctx, u.ID, models.UserPatch{LastLoginAt: &now})
	require.NoError(t, err)

	require.NoError(t, server.Close())
	_, err = server.FindByID(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, tool.Initialize(ctx))
	t.Cleanup(func() { tool.Close() })
	got, err := tool.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
}

func TestStore_FailedInitializeReleasesLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("[{oops"), 0o600))

	first := New(NewFileSnapshot(path), nil)
	require.ErrorIs(t, first.Initialize(ctx), common.ErrStorage)

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	second := New(NewFileSnapshot(path), nil)
	require.NoError(t, second.Initialize(ctx))
	require.NoError(t, second.Close())
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := New(NewFileSnapshot(filepath.Join(t.TempDir(), "users.json")), nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSQLSnapshot_SQLiteFileIsLocked(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "users.db")

	open := func() *sql.DB {
		db, err := sql.Open(SQLite.DriverName, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	server := New(NewSQLSnapshot(open(), SQLite), nil)
	require.NoError(t, server.Initialize(ctx))

	tool := New(NewSQLSnapshot(open(), SQLite), nil)
	require.ErrorIs(t, tool.Initialize(ctx), ErrLocked)

	require.NoError(t, server.Close())
	require.NoError(t, tool.Initialize(ctx))
	require.NoError(t, tool.Close())
}

func TestSQLSnapshot_PostgresAdvisoryLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquired and released", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`pg_try_advisory_lock`).WithArgs(advisoryLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
		mock.ExpectExec(`pg_advisory_unlock`).WithArgs(advisoryLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))

		snap := NewSQLSnapshot(db, Postgres)
		require.NoError(t, snap.Lock(ctx))
		require.NoError(t, snap.Lock(ctx))
		require.NoError(t, snap.Unlock())
		require.NoError(t, snap.Unlock())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("held elsewhere", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`pg_try_advisory_lock`).WithArgs(advisoryLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

		err = NewSQLSnapshot(db, Postgres).Lock(ctx)
		require.ErrorIs(t, err, ErrLocked)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
