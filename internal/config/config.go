package config

import (
	"fmt"
	"time"

	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Keys       KeysConfig       `mapstructure:"keys"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Security   SecurityConfig   `mapstructure:"security"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"`
	// Organization is the only organization segment the HTTP routes answer for.
	Organization   string   `mapstructure:"organization"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// KeysConfig controls generated keypairs.
type KeysConfig struct {
	Bits             int                        `mapstructure:"bits"`
	PrivateKeyFormat constants.PrivateKeyFormat `mapstructure:"private_key_format"`
	Comment          string                     `mapstructure:"comment"`
}

type StorageConfig struct {
	Backend constants.StorageBackend `mapstructure:"backend"`
	// Timeout bounds one repository round trip.
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnTimeout     time.Duration `mapstructure:"conn_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	// Mode is one of standalone, cluster or sentinel.
	Mode           string        `mapstructure:"mode"`
	Addresses      []string      `mapstructure:"addresses"`
	SentinelMaster string        `mapstructure:"sentinel_master"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	EnableTLS      bool          `mapstructure:"enable_tls"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
}

type VaultConfig struct {
	Address    string        `mapstructure:"address"`
	Token      string        `mapstructure:"token"`
	Namespace  string        `mapstructure:"namespace"`
	MountPath  string        `mapstructure:"mount_path"`
	PathPrefix string        `mapstructure:"path_prefix"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

type SecurityConfig struct {
	// KeyEncryptionSecret seals private keys at rest.
	KeyEncryptionSecret string `mapstructure:"key_encryption_secret"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// SigningSecret, when set, adds an HMAC-SHA256 signature header to every event.
	SigningSecret string `mapstructure:"signing_secret"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

type MonitoringConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	PprofEnabled   bool `mapstructure:"pprof_enabled"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Keys.Bits < constants.MinKeyBits || c.Keys.Bits > constants.MaxKeyBits {
		return errors.ErrInvalidRequest(fmt.Sprintf("keys.bits must be between %d and %d, got %d",
			constants.MinKeyBits, constants.MaxKeyBits, c.Keys.Bits))
	}

	switch c.Keys.PrivateKeyFormat {
	case constants.PrivateKeyFormatPKCS1, constants.PrivateKeyFormatOpenSSH:
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("unknown keys.private_key_format %q", c.Keys.PrivateKeyFormat))
	}

	switch c.Storage.Backend {
	case constants.StorageBackendMemory, constants.StorageBackendPostgres,
		constants.StorageBackendSQLite, constants.StorageBackendRedis, constants.StorageBackendVault:
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Auth.JWTSecret == "" {
		return errors.ErrInvalidRequest("auth.jwt_secret is required")
	}
	if c.Security.KeyEncryptionSecret == "" {
		return errors.ErrInvalidRequest("security.key_encryption_secret is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.ErrInvalidRequest("kafka.brokers is required when kafka is enabled")
	}
	if c.Server.Organization == "" {
		return errors.ErrInvalidRequest("server.organization must not be empty")
	}
	return nil
}

//Personal.AI order the ending
