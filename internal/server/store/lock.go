package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Initialize when another process already owns the
// storage. Two owners would overwrite each other's snapshots.
var ErrLocked = errors.New("storage is locked by another process")

// Locker is implemented by snapshots that can claim their storage
// exclusively. The claim lasts until Unlock.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// lockFile takes a non-blocking flock on path.
func lockFile(path string) (*flock.Flock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return fl, nil
}

// lockSQLiteFile locks "<database file>.lock". In-memory databases belong to
// one *sql.DB and need no lock.
func lockSQLiteFile(ctx context.Context, db *sql.DB) (func() error, error) {
	var file string
	err := db.QueryRowContext(ctx, `SELECT file FROM pragma_database_list WHERE name = 'main'`).Scan(&file)
	if err != nil {
		return nil, fmt.Errorf("db file: %w", err)
	}
	if file == "" {
		return func() error { return nil }, nil
	}

	fl, err := lockFile(file + ".lock")
	if err != nil {
		return nil, err
	}
	return fl.Unlock, nil
}

// advisoryLockKey identifies the users table among other advisory locks.
const advisoryLockKey int64 = 0x7573657261757468

// lockAdvisory holds a Postgres session advisory lock on a dedicated
// connection, so the lock lives exactly as long as that session.
func lockAdvisory(ctx context.Context, db *sql.DB) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("db conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: advisory lock %d", ErrLocked, advisoryLockKey)
	}

	return func() error {
		_, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
		return errors.Join(err, conn.Close())
	}, nil
}
