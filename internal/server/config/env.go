package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/dmitrijs2005/userauth/internal/timex"
	"github.com/joho/godotenv"
)

// envFile is read when present. Variables already set in the process
// environment win over the file.
var envFile = ".env"

// parseEnv overlays Config with environment variables:
//
//	PORT            HTTP port (":<PORT>")
//	HTTP_ADDR       HTTP bind address, wins over PORT
//	GRPC_ADDR       gRPC bind address
//	JWT_SECRET      JWT HMAC secret
//	JWT_EXPIRES_IN  token validity ("7d", "168h")
//	STORAGE_DRIVER  file, sqlite or postgres
//	DATA_FILE       snapshot path for the file driver
//	DATABASE_DSN    DSN for the sql drivers
//	HASH_ALGORITHM  bcrypt or argon2id
//	BCRYPT_COST     bcrypt work factor
//	LOG_LEVEL       debug, info, warn, error
func parseEnv(config *Config) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		config.EndpointAddrHTTP = ":" + v
	}
	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	setString(&config.SecretKey, "JWT_SECRET")
	setString(&config.StorageDriver, "STORAGE_DRIVER")
	setString(&config.DataFile, "DATA_FILE")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.HashAlgorithm, "HASH_ALGORITHM")
	setString(&config.LogLevel, "LOG_LEVEL")

	if v, ok := os.LookupEnv("JWT_EXPIRES_IN"); ok && v != "" {
		d, err := timex.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
		}
		config.TokenValidityDuration = d
	}

	if v, ok := os.LookupEnv("BCRYPT_COST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		config.BcryptCost = n
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
