// Package users validates registration and profile input and builds new
// user records from it.
package users

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"golang.org/x/text/unicode/norm"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Fields is the raw input of a registration or a profile update.
type Fields struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Hasher is the part of passwords.Hasher that New needs.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Validate checks every registration rule and returns the messages of all
// failing rules in a fixed order: first name, last name, email, password.
// Each field reports at most one message.
func Validate(f Fields) []string {
	errs := ValidateProfile(f)
	if msg := checkPassword(f.Password); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

// ValidateProfile applies the name and email rules only.
func ValidateProfile(f Fields) []string {
	var errs []string
	if msg := checkName(f.FirstName, "first name"); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkName(f.LastName, "last name"); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkEmail(f.Email); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

// ValidEmail reports whether s has the local@domain.tld shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// New validates f, hashes the password and returns a fresh active record.
// The ID is left empty; the store assigns it.
func New(f Fields, h Hasher, now time.Time) (*models.User, error) {
	if errs := Validate(f); len(errs) > 0 {
		return nil, common.NewValidationError(errs...)
	}

	hash, err := h.Hash(f.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now = now.UTC()
	return &models.User{
		FirstName:    NormalizeName(f.FirstName),
		LastName:     NormalizeName(f.LastName),
		Email:        strings.TrimSpace(f.Email),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeName trims and composes a name, so "Jose" followed by a combining
// acute accent is stored and counted as "José".
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func checkName(name, label string) string {
	name = NormalizeName(name)
	switch {
	case utf8.RuneCountInString(name) < minNameLength:
		return fmt.Sprintf("%s must be at least %d characters", label, minNameLength)
	case utf8.RuneCountInString(name) > maxNameLength:
		return fmt.Sprintf("%s cannot exceed %d characters", label, maxNameLength)
	case !lettersAndSpaces(name):
		return label + " may only contain letters"
	}
	return ""
}

func lettersAndSpaces(s string) bool {
	for _, r := range s {
		// Marks without a precomposed form survive NFC.
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && !unicode.Is(unicode.Mn, r) {
			return false
		}
	}
	return true
}

func checkEmail(email string) string {
	switch {
	case email == "":
		return "email is required"
	case !ValidEmail(email):
		return "enter a valid email"
	}
	return ""
}

func checkPassword(password string) string {
	switch {
	case password == "":
		return "password is required"
	case utf8.RuneCountInString(password) < minPasswordLength:
		return fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	case !strings.ContainsFunc(password, unicode.IsDigit):
		return "password must contain a number"
	}
	return ""
}
