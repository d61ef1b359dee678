package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/flagx"
	"github.com/dmitrijs2005/tokengate/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "24h" and integer nanoseconds. TTLSeconds, when
// set, overrides TokenTTL.
type JsonConfig struct {
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC *string        `json:"endpoint_addr_grpc"`
	PublicBaseURL    string         `json:"public_base_url"`
	SecretBackend    string         `json:"secret_backend"`
	SecretKeyName    string         `json:"secret_key_name"`
	DatabaseDSN      string         `json:"database_dsn"`
	RedisAddr        string         `json:"redis_addr"`
	RedisPassword    string         `json:"redis_password"`
	RedisDB          *int           `json:"redis_db"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	TokenTTL         timex.Duration `json:"token_ttl"`
	TTLSeconds       int64          `json:"ttl_seconds"`
	AdminRole        string         `json:"admin_role"`
	NonceLifetime    timex.Duration `json:"nonce_lifetime"`
	NonceKey         string         `json:"nonce_key"`
	LogLevel         string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config. Without either flag nothing is loaded. Only fields present in the
// file replace the current values; an explicit empty endpoint_addr_grpc
// disables gRPC.
func parseJson(config *Config) error {

	// try flags
	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	if c.EndpointAddrGRPC != nil {
		config.EndpointAddrGRPC = *c.EndpointAddrGRPC
	}
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.SecretBackend, c.SecretBackend)
	setString(&config.SecretKeyName, c.SecretKeyName)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.TokenTTL.Duration != 0 {
		config.TokenTTL = c.TokenTTL.Duration
	}
	if c.TTLSeconds != 0 {
		config.TokenTTL = time.Duration(c.TTLSeconds) * time.Second
	}
	setString(&config.AdminRole, c.AdminRole)
	if c.NonceLifetime.Duration != 0 {
		config.NonceLifetime = c.NonceLifetime.Duration
	}
	setString(&config.NonceKey, c.NonceKey)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
