// Package passwords hashes and verifies user passwords.
//
// New hashes use the configured algorithm (bcrypt or Argon2id). Verify looks
// at the prefix of the stored hash, so records written under either algorithm
// keep verifying after the configuration changes.
package passwords

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/userauth/internal/common"
	"golang.org/x/crypto/bcrypt"
)

type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// DefaultBcryptCost is the production work factor.
const DefaultBcryptCost = 12

// Options selects the algorithm and its cost parameters for new hashes.
type Options struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Params
}

// DefaultOptions returns bcrypt at DefaultBcryptCost.
func DefaultOptions() Options {
	return Options{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Params(),
	}
}

type Hasher struct {
	opts  Options
	dummy string
}

// NewHasher validates opts and prepares a hasher. A throwaway hash is computed
// up front so that logins for unknown emails cost as much as real ones.
func NewHasher(opts Options) (*Hasher, error) {
	switch opts.Algorithm {
	case AlgorithmBcrypt:
		if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", opts.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
		}
	case AlgorithmArgon2id:
		if err := opts.Argon2.validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", opts.Algorithm)
	}

	h := &Hasher{opts: opts}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("crypto/rand failed: %w", err)
	}
	dummy, err := h.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy

	return h, nil
}

// Algorithm reports the algorithm used for new hashes.
func (h *Hasher) Algorithm() Algorithm { return h.opts.Algorithm }

// Hash returns a salted, self-describing hash of plaintext. Empty input, and
// input the algorithm cannot represent, fail with a *common.ValidationError.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", common.NewValidationError("password is required")
	}

	switch h.opts.Algorithm {
	case AlgorithmArgon2id:
		return hashArgon2id(plaintext, h.opts.Argon2)
	default:
		b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.opts.BcryptCost)
		if err != nil {
			if errors.Is(err, bcrypt.ErrPasswordTooLong) {
				return "", common.NewValidationError("password cannot exceed 72 bytes")
			}
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(b), nil
	}
}

// Verify reports whether candidate matches encoded. It never fails: empty
// input, unknown formats and decode errors all yield false.
func (h *Hasher) Verify(candidate, encoded string) bool {
	if candidate == "" || encoded == "" {
		return false
	}

	switch {
	case isArgon2id(encoded):
		return verifyArgon2id(candidate, encoded)
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(candidate)) == nil
	default:
		return false
	}
}

// VerifyDummy burns the same CPU as a real Verify and always reports false.
func (h *Hasher) VerifyDummy(candidate string) bool {
	if candidate == "" {
		candidate = "-"
	}
	_ = h.Verify(candidate, h.dummy)
	return false
}

// NeedsRehash reports whether encoded was produced by another algorithm or
// with weaker parameters than the current ones.
func (h *Hasher) NeedsRehash(encoded string) bool {
	switch h.opts.Algorithm {
	case AlgorithmArgon2id:
		if !isArgon2id(encoded) {
			return true
		}
		p, _, _, err := decodeArgon2id(encoded)
		if err != nil {
			return true
		}
		want := h.opts.Argon2
		return p.Memory < want.Memory || p.Iterations < want.Iterations || p.Parallelism < want.Parallelism
	default:
		if !isBcrypt(encoded) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(encoded))
		if err != nil {
			return true
		}
		return cost < h.opts.BcryptCost
	}
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
