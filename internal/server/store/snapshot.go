package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/userauth/internal/server/models"
)

// ErrNoSnapshot is returned by Load when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshotter persists the whole user collection at once.
type Snapshotter interface {
	// Prepare makes sure the backing location exists (directory, schema).
	Prepare(ctx context.Context) error
	// Load returns the persisted records in order, or ErrNoSnapshot.
	Load(ctx context.Context) ([]*models.User, error)
	// Save replaces the persisted collection with users.
	Save(ctx context.Context, users []*models.User) error
}
