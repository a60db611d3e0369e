package config

import (
	"flag"
	"io"
	"os"

	"github.com/dmitrijs2005/userauth/internal/flagx"
	"github.com/dmitrijs2005/userauth/internal/timex"
)

// valueFlags are the flags parseFlags understands. All of them take a value.
var valueFlags = []string{"-a", "-g", "-s", "-t", "-S", "-f", "-d", "-H", "-b", "-l"}

// ArgFlags lists every flag any configuration layer reads from os.Args, so
// tools can tell their own positional arguments apart.
func ArgFlags() []string {
	return append([]string{"-c", "-config"}, valueFlags...)
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":5000")
//	-g string   gRPC bind address (e.g., ":50051")
//	-s string   JWT HMAC secret key
//	-t string   token validity ("7d", "168h")
//	-S string   storage driver: file, sqlite, postgres
//	-f string   snapshot file for the file driver
//	-d string   database DSN for the sql drivers
//	-H string   hash algorithm: bcrypt, argon2id
//	-b int      bcrypt cost
//	-l string   log level
//
// os.Args is first filtered with flagx.FilterArgs so the -c/-config flag of
// the JSON layer does not trip this flag set.
func parseFlags(config *Config) error {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], valueFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	fs.Func("t", "token validity, e.g. 7d or 168h", func(v string) error {
		d, err := timex.ParseDuration(v)
		if err != nil {
			return err
		}
		config.TokenValidityDuration = d
		return nil
	})
	fs.StringVar(&config.StorageDriver, "S", config.StorageDriver, "storage driver (file, sqlite, postgres)")
	fs.StringVar(&config.DataFile, "f", config.DataFile, "snapshot file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.HashAlgorithm, "H", config.HashAlgorithm, "hash algorithm (bcrypt, argon2id)")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
