// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, profile changes and
// resolving bearer tokens back to users.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/dmitrijs2005/userauth/internal/server/store"
	"github.com/dmitrijs2005/userauth/internal/server/users"
)

// UserStore is the persistence the service needs; *store.Store satisfies it.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	Stats() store.Stats
}

// PasswordHasher is implemented by passwords.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(candidate, encoded string) bool
	VerifyDummy(candidate string) bool
	NeedsRehash(encoded string) bool
}

// TokenIssuer is implemented by auth.TokenIssuer.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// Session is what a successful register or login hands back to the client.
type Session struct {
	User      models.Profile `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// ProfileInput carries a profile change. Empty fields are left unchanged.
type ProfileInput struct {
	FirstName string
	LastName  string
	Email     string
}

type UserService struct {
	store  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	logger logging.Logger
	now    func() time.Time
}

func NewUserService(s UserStore, h PasswordHasher, t TokenIssuer, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &UserService{
		store:  s,
		hasher: h,
		tokens: t,
		logger: logger.With("module", "users"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register validates in, stores a new active user and opens a session for it.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	fields := users.Fields{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	}
	if errs := users.Validate(fields); len(errs) > 0 {
		return nil, common.NewValidationError(errs...)
	}

	// Skip the hashing work for an email that is obviously taken. Insert
	// checks again under the store lock.
	if _, err := s.store.FindByEmail(ctx, in.Email); err == nil {
		return nil, common.ErrDuplicateEmail
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, s.internal(ctx, "lookup email", err)
	}

	u, err := users.New(fields, s.hasher, s.now())
	if err != nil {
		var verr *common.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, s.internal(ctx, "build user", err)
	}

	u, err = s.store.Insert(ctx, u)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, common.ErrDuplicateEmail
		}
		return nil, s.internal(ctx, "insert user", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return s.openSession(ctx, u)
}

// Login checks the credentials and opens a session. Unknown emails and wrong
// passwords are indistinguishable; a disabled account is reported only after
// the password matched.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "lookup email", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		s.logger.Info(ctx, "login rejected", "user_id", u.ID)
		return nil, common.ErrInvalidCredentials
	}

	if !u.IsActive {
		s.logger.Info(ctx, "login to disabled account", "user_id", u.ID)
		return nil, common.ErrAccountDisabled
	}

	now := s.now()
	patch := models.UserPatch{LastLoginAt: &now}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		if hash, err := s.hasher.Hash(password); err != nil {
			s.logger.Warn(ctx, "rehash failed", "user_id", u.ID, "error", err)
		} else {
			patch.PasswordHash = &hash
		}
	}

	u, err = s.store.Update(ctx, u.ID, patch)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// deleted after the lookup
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "record login", err)
	}
	if patch.PasswordHash != nil {
		s.logger.Info(ctx, "password hash upgraded", "user_id", u.ID)
	}

	return s.openSession(ctx, u)
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "lookup user", err)
	}

	p := u.Profile()
	return &p, nil
}

// UpdateProfile merges the non-empty fields of in into the user's profile and
// validates the result as a whole.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	cur, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "lookup user", err)
	}

	merged := users.Fields{FirstName: cur.FirstName, LastName: cur.LastName, Email: cur.Email}
	var patch models.UserPatch
	if in.FirstName != "" {
		merged.FirstName = in.FirstName
		patch.FirstName = ptr(users.NormalizeName(in.FirstName))
	}
	if in.LastName != "" {
		merged.LastName = in.LastName
		patch.LastName = ptr(users.NormalizeName(in.LastName))
	}
	if in.Email != "" {
		merged.Email = in.Email
		patch.Email = ptr(strings.TrimSpace(in.Email))
	}

	if errs := users.ValidateProfile(merged); len(errs) > 0 {
		return nil, common.NewValidationError(errs...)
	}

	u, err := s.store.Update(ctx, userID, patch)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrDuplicateEmail):
			return nil, common.ErrDuplicateEmail
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "update profile", err)
	}

	s.logger.Info(ctx, "profile updated", "user_id", u.ID)
	p := u.Profile()
	return &p, nil
}

// Authenticate resolves a bearer token to the profile of an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.Profile, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, s.internal(ctx, "lookup user", err)
	}
	if !u.IsActive {
		return nil, common.ErrInvalidToken
	}

	p := u.Profile()
	return &p, nil
}

func (s *UserService) Stats() store.Stats {
	return s.store.Stats()
}

func (s *UserService) openSession(ctx context.Context, u *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, s.internal(ctx, "issue token", err)
	}
	return &Session{User: u.Profile(), Token: token, ExpiresAt: expiresAt}, nil
}

// internal logs err and returns it wrapped as ErrorInternal so the transport
// can answer with a generic failure.
func (s *UserService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %s: %w", common.ErrorInternal, op, err)
}

func ptr(v string) *string {
	return &v
}
