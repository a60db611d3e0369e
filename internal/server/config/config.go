// Package config handles configuration for the server component,
// including defaults, .env and environment variables, JSON overlay, and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/auth"
	"github.com/dmitrijs2005/userauth/internal/server/passwords"
	"github.com/dmitrijs2005/userauth/internal/server/store"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MinBcryptCost is the lowest work factor the server accepts.
const MinBcryptCost = 10

// ErrMissingSecret is returned when no JWT secret was configured anywhere.
var ErrMissingSecret = errors.New("JWT_SECRET is not set")

// Config holds runtime settings for the auth server.
//
// Fields:
//   - EndpointAddrHTTP: bind address of the JSON API.
//   - EndpointAddrGRPC: bind address of the gRPC health endpoint.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Required.
//   - TokenValidityDuration: bearer token lifetime.
//   - StorageDriver: where the user snapshot lives (file, sqlite, postgres).
//   - DataFile: snapshot path for the file driver.
//   - DatabaseDSN: DSN for the sqlite and postgres drivers.
//   - HashAlgorithm / BcryptCost: password hashing for new hashes.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddrHTTP      string
	EndpointAddrGRPC      string
	SecretKey             string
	TokenValidityDuration time.Duration
	StorageDriver         string
	DataFile              string
	DatabaseDSN           string
	HashAlgorithm         string
	BcryptCost            int
	LogLevel              string
}

// LoadDefaults populates Config with development defaults. There is no
// default secret.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":5000"
	c.EndpointAddrGRPC = ":50051"
	c.TokenValidityDuration = auth.DefaultTokenValidity
	c.StorageDriver = DriverFile
	c.DataFile = store.DefaultDataFile
	c.HashAlgorithm = string(passwords.AlgorithmBcrypt)
	c.BcryptCost = passwords.DefaultBcryptCost
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from .env and the environment, an optional JSON file and finally
// command-line flags. The result is validated.
func LoadConfig() (*Config, error) {
	return load(true)
}

// LoadToolConfig is LoadConfig for the admin tool, which never signs tokens
// and so runs without a secret.
func LoadToolConfig() (*Config, error) {
	return load(false)
}

func load(requireSecret bool) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	if err := parseJson(cfg); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.validate(requireSecret); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireSecret bool) error {
	var errs []error

	if requireSecret && c.SecretKey == "" {
		errs = append(errs, ErrMissingSecret)
	}
	if c.TokenValidityDuration <= 0 {
		errs = append(errs, fmt.Errorf("token validity must be positive, got %s", c.TokenValidityDuration))
	}

	switch passwords.Algorithm(c.HashAlgorithm) {
	case passwords.AlgorithmBcrypt:
		if c.BcryptCost < MinBcryptCost || c.BcryptCost > 31 {
			errs = append(errs, fmt.Errorf("bcrypt cost must be between %d and 31, got %d", MinBcryptCost, c.BcryptCost))
		}
	case passwords.AlgorithmArgon2id:
	default:
		errs = append(errs, fmt.Errorf("unknown hash algorithm %q", c.HashAlgorithm))
	}

	switch c.StorageDriver {
	case DriverFile:
		if c.DataFile == "" {
			errs = append(errs, errors.New("data file must be set for the file driver"))
		}
	case DriverSQLite, DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Errorf("database DSN must be set for the %s driver", c.StorageDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// HasherOptions translates the hashing settings for passwords.NewHasher.
func (c *Config) HasherOptions() passwords.Options {
	opts := passwords.DefaultOptions()
	opts.Algorithm = passwords.Algorithm(c.HashAlgorithm)
	opts.BcryptCost = c.BcryptCost
	return opts
}
