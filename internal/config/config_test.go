package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("KEYSTORE_AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("KEYSTORE_SECURITY_KEY_ENCRYPTION_SECRET", "kek-secret")
}

func TestLoadConfig_DefaultsWithEnvSecrets(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := LoadConfig("", logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultKeyBits, cfg.Keys.Bits)
	assert.Equal(t, constants.PrivateKeyFormatPKCS1, cfg.Keys.PrivateKeyFormat)
	assert.Equal(t, constants.StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, constants.DefaultOrganization, cfg.Server.Organization)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "jwt-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "kek-secret", cfg.Security.KeyEncryptionSecret)
	assert.Equal(t, 1, cfg.Kafka.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Kafka.BatchTimeout)
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("KEYSTORE_KEYS_BITS", "3072")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keys:
  bits: 4096
  private_key_format: openssh
storage:
  backend: redis
redis:
  addresses: ["redis-a:6379", "redis-b:6379"]
  mode: cluster
server:
  organization: acme
`), 0o600))

	cfg, err := LoadConfig(path, logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, 3072, cfg.Keys.Bits, "env must win over file")
	assert.Equal(t, constants.PrivateKeyFormatOpenSSH, cfg.Keys.PrivateKeyFormat)
	assert.Equal(t, constants.StorageBackendRedis, cfg.Storage.Backend)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Redis.Addresses)
	assert.Equal(t, "acme", cfg.Server.Organization)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	setRequiredSecrets(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), logger.NewNoopLogger())
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeInvalidRequest, mustKeyStoreError(t, err).Code())
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Organization: constants.DefaultOrganization},
		Keys:     KeysConfig{Bits: 2048, PrivateKeyFormat: constants.PrivateKeyFormatPKCS1},
		Storage:  StorageConfig{Backend: constants.StorageBackendMemory},
		Auth:     AuthConfig{JWTSecret: "s"},
		Security: SecurityConfig{KeyEncryptionSecret: "k"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"minimum bits", func(c *Config) { c.Keys.Bits = 1024 }, false},
		{"too few bits", func(c *Config) { c.Keys.Bits = 512 }, true},
		{"too many bits", func(c *Config) { c.Keys.Bits = 32768 }, true},
		{"unknown format", func(c *Config) { c.Keys.PrivateKeyFormat = "pkcs8" }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, true},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"missing encryption secret", func(c *Config) { c.Security.KeyEncryptionSecret = "" }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
		{"kafka with brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = []string{"k:9092"} }, false},
		{"empty organization", func(c *Config) { c.Server.Organization = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, constants.ErrCodeInvalidRequest, mustKeyStoreError(t, err).Code())
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func mustKeyStoreError(t *testing.T, err error) errors.KeyStoreError {
	t.Helper()
	kse, ok := errors.AsKeyStoreError(err)
	require.True(t, ok)
	return kse
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "keystore", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=keystore sslmode=disable", c.GetDSN())
}

func TestLoader_WatchAppliesValidChanges(t *testing.T) {
	setRequiredSecrets(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	loader := NewLoader(path, logger.NewNoopLogger())
	_, err := loader.Load()
	require.NoError(t, err)

	var level atomic.Value
	loader.Watch(func(cfg *Config) { level.Store(cfg.Log.Level) })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}
