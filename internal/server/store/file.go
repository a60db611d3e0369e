package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dmitrijs2005/userauth/internal/filex"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/gofrs/flock"
)

// DefaultDataFile is where the snapshot lives, relative to the working directory.
const DefaultDataFile = "data/users.json"

// FileSnapshot keeps the collection as an indented JSON array on disk.
type FileSnapshot struct {
	path string
	lock *flock.Flock
}

func NewFileSnapshot(path string) *FileSnapshot {
	if path == "" {
		path = DefaultDataFile
	}
	return &FileSnapshot{path: path}
}

// Path is the resolved snapshot location (absolute after Prepare).
func (f *FileSnapshot) Path() string { return f.path }

func (f *FileSnapshot) Prepare(ctx context.Context) error {
	abs, err := filex.EnsureParentDir(f.path)
	if err != nil {
		return err
	}
	f.path = abs
	return nil
}

// LockPath is the lock file guarding the snapshot.
func (f *FileSnapshot) LockPath() string { return f.path + ".lock" }

// Lock takes "<snapshot>.lock" without waiting. Call it after Prepare.
func (f *FileSnapshot) Lock(ctx context.Context) error {
	if f.lock != nil {
		return nil
	}
	fl, err := lockFile(f.LockPath())
	if err != nil {
		return err
	}
	f.lock = fl
	return nil
}

func (f *FileSnapshot) Unlock() error {
	if f.lock == nil {
		return nil
	}
	err := f.lock.Unlock()
	f.lock = nil
	return err
}

// fileRecord mirrors models.User; IsActive is a pointer so records written
// without the field come back active.
type fileRecord struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	IsActive     *bool      `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (f *FileSnapshot) Load(ctx context.Context) ([]*models.User, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoSnapshot
	}

	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	users := make([]*models.User, 0, len(records))
	for _, r := range records {
		active := true
		if r.IsActive != nil {
			active = *r.IsActive
		}
		users = append(users, &models.User{
			ID:           r.ID,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			Email:        r.Email,
			PasswordHash: r.PasswordHash,
			IsActive:     active,
			LastLoginAt:  r.LastLoginAt,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}

	return users, nil
}

func (f *FileSnapshot) Save(ctx context.Context, users []*models.User) error {
	if users == nil {
		users = []*models.User{}
	}

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return filex.WriteFileAtomic(f.path, data, 0o600)
}
