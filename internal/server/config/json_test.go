package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http": "www.example:9000",
		"endpoint_addr_grpc": "",
		"public_base_url":    "https://shop.example.com",
		"secret_backend":     "s3",
		"secret_key_name":    "mobile_secret",
		"database_dsn":       "postgres://db",
		"redis_db":           0,
		"s3_root_user":       "user",
		"s3_root_password":   "password",
		"s3_bucket":          "bucket",
		"s3_region":          "region",
		"s3_base_endpoint":   "base_endpoint",
		"token_ttl":          "2h",
		"admin_role":         "shop_manager",
		"nonce_lifetime":     int64(time.Hour),
		"nonce_key":          "nk",
		"log_level":          "warn",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		cfg.RedisDB = 5
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "", cfg.EndpointAddrGRPC, "explicit empty disables grpc")
		assert.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
		assert.Equal(t, BackendS3, cfg.SecretBackend)
		assert.Equal(t, "mobile_secret", cfg.SecretKeyName)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, 0, cfg.RedisDB)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
		assert.Equal(t, "shop_manager", cfg.AdminRole)
		assert.Equal(t, time.Hour, cfg.NonceLifetime)
		assert.Equal(t, "nk", cfg.NonceKey)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr, "absent keys keep their value")
	})

	t.Run("short flag and ttl_seconds override", func(t *testing.T) {
		path := writeTempJSON(t, dir, "ttl.json", map[string]any{
			"token_ttl":   "2h",
			"ttl_seconds": 90,
		})
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, 90*time.Second, cfg.TokenTTL)
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
	})

	t.Run("no flag loads nothing", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, &Config{}, cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.json")}
		assert.Error(t, parseJson(&Config{}))
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", bad}
		assert.Error(t, parseJson(&Config{}))
	})
}

func TestLoadConfig_FlagsWinOverJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{"ttl_seconds": 90, "secret_backend": "memory"})
	os.Args = []string{"testbin", "-c", path, "-ttl", "30"}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.TokenTTL)
	assert.Equal(t, BackendMemory, cfg.SecretBackend)
}
