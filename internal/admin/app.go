// Package admin implements userctl, the operator tool that works on the user
// snapshot directly: counting, listing, creating, enabling, disabling and
// deleting accounts.
//
// It opens the same storage the server is configured with and takes the same
// exclusive lock: a lock file next to the snapshot or SQLite database, or a
// session advisory lock on Postgres. While the server is running userctl
// refuses to start, so stop the server first.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server"
	"github.com/dmitrijs2005/userauth/internal/server/config"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/dmitrijs2005/userauth/internal/server/passwords"
	"github.com/dmitrijs2005/userauth/internal/server/store"
	"github.com/dmitrijs2005/userauth/internal/server/users"
)

// Store is the part of store.Store the commands use.
type Store interface {
	Insert(ctx context.Context, u *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*models.User, error)
	Stats() store.Stats
	Clear(ctx context.Context) error
}

type App struct {
	store  Store
	hasher users.Hasher
	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time
	closer func() error
	db     *sql.DB
}

// NewApp opens and loads the configured storage. Store logs go to stderr.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSON(os.Stderr, level)

	snap, db, err := server.OpenSnapshot(c)
	if err != nil {
		return nil, err
	}

	s := store.New(snap, logger.With("module", "userctl"))
	if err := s.Initialize(ctx); err != nil {
		if db != nil {
			db.Close()
		}
		if errors.Is(err, store.ErrLocked) {
			return nil, fmt.Errorf("%w; stop the server before running userctl", err)
		}
		return nil, fmt.Errorf("store init error: %w", err)
	}

	hasher, err := passwords.NewHasher(c.HasherOptions())
	if err != nil {
		s.Close()
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	app := newApp(s, hasher, os.Stdin, os.Stdout)
	app.closer = s.Close
	app.db = db
	return app, nil
}

func newApp(s Store, h users.Hasher, in io.Reader, out io.Writer) *App {
	return &App{
		store:  s,
		hasher: h,
		reader: bufio.NewReader(in),
		out:    out,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the storage lock, then the database.
func (a *App) Close() error {
	var err error
	if a.closer != nil {
		err = a.closer()
		a.closer = nil
	}
	if a.db != nil {
		err = errors.Join(err, a.db.Close())
		a.db = nil
	}
	return err
}

const usage = `usage: userctl [flags] <command> [args]

commands:
  stats                   count users
  list                    list users in creation order
  create                  create a user (prompts for the fields)
  disable <email|id>      block logins for a user
  enable <email|id>       allow logins again
  delete <email|id>       remove a user
  clear                   remove every user (asks for confirmation)

flags are the server's: -c config.json, -S driver, -f data file, -d DSN,
-H hash algorithm, -b bcrypt cost, -l log level
`

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return nil
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	case "stats":
		return a.stats()
	case "list":
		return a.list(ctx)
	case "create":
		return a.create(ctx)
	case "disable":
		return a.setActive(ctx, rest, false)
	case "enable":
		return a.setActive(ctx, rest, true)
	case "delete":
		return a.delete(ctx, rest)
	case "clear":
		return a.clear(ctx)
	default:
		return fmt.Errorf("unknown command %q (try userctl help)", cmd)
	}
}
