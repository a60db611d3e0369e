// Package server wires the auth server together: it picks the snapshot
// backend, loads the user store, and runs the HTTP API next to the gRPC
// health endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/auth"
	"github.com/dmitrijs2005/userauth/internal/server/config"
	"github.com/dmitrijs2005/userauth/internal/server/passwords"
	"github.com/dmitrijs2005/userauth/internal/server/services"
	"github.com/dmitrijs2005/userauth/internal/server/store"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/userauth/internal/server/grpc"
	hs "github.com/dmitrijs2005/userauth/internal/server/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	store      *store.Store
	users      *services.UserService
	httpServer *hs.Server
	grpcServer *gs.GRPCServer
}

// NewApp builds every component and loads the user store. Log output goes
// to stdout as JSON.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSON(logOut, level)

	snap, db, err := OpenSnapshot(c)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger, db: db}

	app.store = store.New(snap, logger)
	if err := app.store.Initialize(ctx); err != nil {
		app.closeDB(ctx)
		return nil, fmt.Errorf("store init error: %w", err)
	}

	hasher, err := passwords.NewHasher(c.HasherOptions())
	if err != nil {
		app.closeStore(ctx)
		return nil, err
	}
	tokens := auth.NewTokenIssuer([]byte(c.SecretKey), c.TokenValidityDuration)

	app.users = services.NewUserService(app.store, hasher, tokens, logger)
	app.httpServer = hs.NewServer(c.EndpointAddrHTTP, hs.NewHandler(app.users, logger), logger)
	app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, app.users)

	logger.Info(ctx, "User store ready",
		"driver", c.StorageDriver,
		"users", app.store.Stats().TotalUsers,
		"hash", c.HashAlgorithm,
	)

	return app, nil
}

// OpenSnapshot returns the snapshot backend selected by c.StorageDriver. The
// *sql.DB is nil for the file driver; otherwise the caller closes it.
func OpenSnapshot(c *config.Config) (store.Snapshotter, *sql.DB, error) {
	var dialect store.Dialect

	switch c.StorageDriver {
	case config.DriverFile:
		return store.NewFileSnapshot(c.DataFile), nil, nil
	case config.DriverSQLite:
		dialect = store.SQLite
	case config.DriverPostgres:
		dialect = store.Postgres
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	db, err := sql.Open(dialect.DriverName, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	return store.NewSQLSnapshot(db, dialect), db, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves HTTP and gRPC until ctx is cancelled, a shutdown signal arrives
// or one of the servers fails. The storage lock and the database, if any, are
// released on return.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.httpServer.Run(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := app.grpcServer.Run(gctx); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "Server stopped with error", "error", err)
	}

	app.closeStore(context.Background())
	app.logger.Info(context.Background(), "App stopped")

	return err
}

// closeStore releases the storage lock, then the database.
func (app *App) closeStore(ctx context.Context) {
	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "store close error", "error", err)
	}
	app.closeDB(ctx)
}

func (app *App) closeDB(ctx context.Context) {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.db = nil
}
