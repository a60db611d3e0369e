package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/userauth/internal/dbx"
	"github.com/dmitrijs2005/userauth/internal/server/migrations"
	"github.com/dmitrijs2005/userauth/internal/server/models"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	// Goose is the goose dialect name used for migrations.
	Goose string
	// DriverName is the database/sql driver to open.
	DriverName string
	bindvar    func(n int) string
	lock       func(ctx context.Context, db *sql.DB) (func() error, error)
}

var (
	SQLite = Dialect{
		Goose:      "sqlite3",
		DriverName: "sqlite",
		bindvar:    func(int) string { return "?" },
		lock:       lockSQLiteFile,
	}
	// Postgres runs on pgx through its database/sql adapter.
	Postgres = Dialect{
		Goose:      "postgres",
		DriverName: "pgx",
		bindvar:    func(n int) string { return "$" + strconv.Itoa(n) },
		lock:       lockAdvisory,
	}
)

// SQLSnapshot keeps the collection in a "users" table, rewritten inside one
// transaction on every Save.
type SQLSnapshot struct {
	db      *sql.DB
	dialect Dialect
	migrate func(ctx context.Context, db *sql.DB, dialect string) error
	unlock  func() error
}

func NewSQLSnapshot(db *sql.DB, d Dialect) *SQLSnapshot {
	return &SQLSnapshot{db: db, dialect: d, migrate: migrations.Up}
}

func (s *SQLSnapshot) Prepare(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return s.migrate(ctx, s.db, s.dialect.Goose)
}

// Lock claims the database for this process: a lock file next to a SQLite
// database, a session advisory lock on Postgres.
func (s *SQLSnapshot) Lock(ctx context.Context) error {
	if s.unlock != nil || s.dialect.lock == nil {
		return nil
	}
	unlock, err := s.dialect.lock(ctx, s.db)
	if err != nil {
		return err
	}
	s.unlock = unlock
	return nil
}

func (s *SQLSnapshot) Unlock() error {
	if s.unlock == nil {
		return nil
	}
	err := s.unlock()
	s.unlock = nil
	return err
}

func (s *SQLSnapshot) Load(ctx context.Context) ([]*models.User, error) {
	return newUsersTable(s.db, s.dialect).List(ctx)
}

func (s *SQLSnapshot) Save(ctx context.Context, users []*models.User) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		t := newUsersTable(tx, s.dialect)
		if err := t.DeleteAll(ctx); err != nil {
			return err
		}
		for i, u := range users {
			if err := t.Insert(ctx, i, u); err != nil {
				return err
			}
		}
		return nil
	})
}

type usersTable struct {
	db      dbx.DBTX
	dialect Dialect
}

func newUsersTable(db dbx.DBTX, d Dialect) *usersTable {
	return &usersTable{db: db, dialect: d}
}

func (t *usersTable) binds(n int) string {
	vars := make([]string, n)
	for i := range vars {
		vars[i] = t.dialect.bindvar(i + 1)
	}
	return strings.Join(vars, ", ")
}

func (t *usersTable) DeleteAll(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (t *usersTable) Insert(ctx context.Context, position int, u *models.User) error {
	query := `INSERT INTO users (id, position, first_name, last_name, email, password_hash, is_active, last_login_at, created_at, updated_at)
		 VALUES (` + t.binds(10) + `)`

	var lastLogin sql.NullString
	if u.LastLoginAt != nil {
		lastLogin = sql.NullString{String: formatTime(*u.LastLoginAt), Valid: true}
	}

	_, err := t.db.ExecContext(ctx, query,
		u.ID, position, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.IsActive,
		lastLogin, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (t *usersTable) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, first_name, last_name, email, password_hash, is_active, last_login_at, created_at, updated_at
		 FROM users ORDER BY position`

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var (
			u                    models.User
			lastLogin            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.IsActive,
			&lastLogin, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			ts, err := parseTime(lastLogin.String)
			if err != nil {
				return nil, err
			}
			u.LastLoginAt = &ts
		}

		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
