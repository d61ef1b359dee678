package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/flagx"
)

var flagNames = []string{
	"-a", "-grpc", "-base-url", "-backend", "-key", "-d",
	"-redis", "-redis-password", "-redis-db",
	"-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint",
	"-ttl", "-admin-role", "-log-level",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string               HTTP bind address (e.g., ":8080")
//	-grpc string            gRPC bind address, empty disables gRPC
//	-base-url string        public base URL used in the mobile .env snippet
//	-backend string         secret backend: memory, postgres, redis or s3
//	-key string             name the secret is stored under
//	-d string               PostgreSQL DSN
//	-redis string           Redis address
//	-redis-password string  Redis password
//	-redis-db int           Redis database number
//	-s3-user string         S3 access key
//	-s3-password string     S3 secret key
//	-s3-bucket string       S3 bucket name
//	-s3-region string       S3 region
//	-s3-endpoint string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-ttl int                token lifetime, seconds
//	-admin-role string      role allowed to manage the secret
//	-log-level string       debug, info, warn or error
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so subcommands of the admin tool can keep their own.
func parseFlags(config *Config) error {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "address and port to run the gRPC server")
	fs.StringVar(&config.PublicBaseURL, "base-url", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.SecretBackend, "backend", config.SecretBackend, "secret backend")
	fs.StringVar(&config.SecretKeyName, "key", config.SecretKeyName, "secret key name")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address")
	fs.StringVar(&config.RedisPassword, "redis-password", config.RedisPassword, "Redis password")
	fs.IntVar(&config.RedisDB, "redis-db", config.RedisDB, "Redis database")
	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")

	ttl := fs.Int64("ttl", int64(config.TokenTTL/time.Second), "token validity (in seconds)")

	fs.StringVar(&config.AdminRole, "admin-role", config.AdminRole, "admin role")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.TokenTTL = time.Duration(*ttl) * time.Second
	return nil
}
