// Package store keeps the user collection in memory and writes the whole
// collection through a Snapshotter after every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/google/uuid"
)

// ErrNotInitialized is returned by every operation issued before Initialize.
var ErrNotInitialized = errors.New("store is not initialized")

// Stats summarizes the collection.
type Stats struct {
	TotalUsers  int  `json:"totalUsers"`
	ActiveUsers int  `json:"activeUsers"`
	Initialized bool `json:"initialized"`
}

// Store is safe for concurrent use. Every operation holds the lock for its
// whole duration, persistence included, so mutations never interleave.
type Store struct {
	mu          sync.RWMutex
	snap        Snapshotter
	logger      logging.Logger
	users       map[string]*models.User
	order       []string
	retired     map[string]struct{}
	initialized bool

	now   func() time.Time
	newID func() string
}

func New(snap Snapshotter, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Store{
		snap:    snap,
		logger:  logger,
		users:   map[string]*models.User{},
		retired: map[string]struct{}{},
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
}

// Initialize loads the persisted collection. A missing snapshot is created
// empty; an unreadable one is reported and left untouched.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	if err := s.snap.Prepare(ctx); err != nil {
		return fmt.Errorf("%w: prepare: %w", common.ErrStorage, err)
	}

	locker, _ := s.snap.(Locker)
	if locker != nil {
		if err := locker.Lock(ctx); err != nil {
			return fmt.Errorf("%w: lock: %w", common.ErrStorage, err)
		}
	}

	if err := s.load(ctx); err != nil {
		if locker != nil {
			if uerr := locker.Unlock(); uerr != nil {
				s.logger.Warn(ctx, "unlock storage failed", "error", uerr)
			}
		}
		return err
	}

	s.initialized = true
	s.logger.Info(ctx, "user store initialized", "users", len(s.order))
	return nil
}

// Close releases the storage lock. The store rejects every operation
// afterwards, like before Initialize.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	s.initialized = false
	s.users = map[string]*models.User{}
	s.order = nil

	if locker, ok := s.snap.(Locker); ok {
		return locker.Unlock()
	}
	return nil
}

// load replaces the in-memory table with the snapshot. Called with the
// write lock held.
func (s *Store) load(ctx context.Context) error {
	loaded, err := s.snap.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		if err := s.snap.Save(ctx, nil); err != nil {
			return fmt.Errorf("%w: create snapshot: %w", common.ErrStorage, err)
		}
		s.logger.Info(ctx, "created empty user snapshot")
	case err != nil:
		return fmt.Errorf("%w: load: %w", common.ErrStorage, err)
	}

	users := make(map[string]*models.User, len(loaded))
	order := make([]string, 0, len(loaded))
	for _, u := range loaded {
		if u.ID == "" {
			return fmt.Errorf("%w: load: record without id", common.ErrStorage)
		}
		if _, dup := users[u.ID]; dup {
			return fmt.Errorf("%w: load: duplicate id %s", common.ErrStorage, u.ID)
		}
		users[u.ID] = u.Clone()
		order = append(order, u.ID)
	}

	s.users = users
	s.order = order
	return nil
}

// Insert stores a new record and returns a copy with its id and timestamps.
// Emails are unique without regard to case.
func (s *Store) Insert(ctx context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	if s.emailTaken(u.Email, "") {
		return nil, common.ErrDuplicateEmail
	}

	rec := u.Clone()
	if rec.ID == "" {
		rec.ID = s.nextID()
	} else if s.idUsed(rec.ID) {
		return nil, fmt.Errorf("id %s already used", rec.ID)
	}

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.users[rec.ID] = rec
	s.order = append(s.order, rec.ID)

	if err := s.persist(ctx); err != nil {
		delete(s.users, rec.ID)
		s.order = s.order[:len(s.order)-1]
		return nil, err
	}

	return rec.Clone(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	email = strings.TrimSpace(email)
	for _, id := range s.order {
		if u := s.users[id]; strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}

	return nil, common.ErrorNotFound
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	return u.Clone(), nil
}

// Update applies patch to the record with the given id and refreshes
// UpdatedAt. The id and CreatedAt never change.
func (s *Store) Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	cur, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	if patch.Email != nil && s.emailTaken(*patch.Email, id) {
		return nil, common.ErrDuplicateEmail
	}

	next := cur.Clone()
	patch.Apply(next)
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()

	s.users[id] = next
	if err := s.persist(ctx); err != nil {
		s.users[id] = cur
		return nil, err
	}

	return next.Clone(), nil
}

// Delete removes the record and reports whether it existed. Its id is never
// handed out again.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, ErrNotInitialized
	}

	cur, ok := s.users[id]
	if !ok {
		return false, nil
	}

	prevOrder := s.order
	delete(s.users, id)
	s.order = removeID(s.order, id)

	if err := s.persist(ctx); err != nil {
		s.users[id] = cur
		s.order = prevOrder
		return false, err
	}

	s.retired[id] = struct{}{}
	return true, nil
}

// List returns copies of all records in insertion order.
func (s *Store) List(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	out := make([]*models.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id].Clone())
	}

	return out, nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalUsers: len(s.order), Initialized: s.initialized}
	for _, u := range s.users {
		if u.IsActive {
			st.ActiveUsers++
		}
	}

	return st
}

// Clear removes every record. Cleared ids stay retired.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}

	prevUsers, prevOrder := s.users, s.order
	s.users = map[string]*models.User{}
	s.order = nil

	if err := s.persist(ctx); err != nil {
		s.users, s.order = prevUsers, prevOrder
		return err
	}

	for _, id := range prevOrder {
		s.retired[id] = struct{}{}
	}

	s.logger.Warn(ctx, "user store cleared", "removed", len(prevOrder))
	return nil
}

// persist must be called with the write lock held.
func (s *Store) persist(ctx context.Context) error {
	users := make([]*models.User, 0, len(s.order))
	for _, id := range s.order {
		users = append(users, s.users[id])
	}

	if err := s.snap.Save(ctx, users); err != nil {
		s.logger.Error(ctx, "persist users failed", "error", err)
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	return nil
}

func (s *Store) emailTaken(email, exceptID string) bool {
	email = strings.TrimSpace(email)
	for id, u := range s.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) idUsed(id string) bool {
	if _, ok := s.users[id]; ok {
		return true
	}
	_, ok := s.retired[id]
	return ok
}

func (s *Store) nextID() string {
	for {
		if id := s.newID(); !s.idUsed(id) {
			return id
		}
	}
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
