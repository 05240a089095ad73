package config

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. KEYSTORE_KEYS_BITS.
const EnvPrefix = "KEYSTORE"

// Loader reads configuration and keeps the viper instance around for hot reload.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a loader. configFile may be empty, in which case the
// standard search paths are used.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/keystore/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// LoadConfig loads the configuration from file, environment variables, and defaults.
func LoadConfig(configFile string, log logger.Logger) (*Config, error) {
	return NewLoader(configFile, log).Load()
}

// Load reads the file (if any), applies env overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidRequest("failed to read config file").WithCause(err)
		}
		l.log.Info(context.Background(), "No config file found, using defaults and environment")
	} else {
		l.log.Info(context.Background(), "Loaded config file", logger.Fields{"file": l.v.ConfigFileUsed()})
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidRequest("failed to unmarshal config").WithCause(err)
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the new, validated
// config to onChange. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		cfg, err := l.unmarshal()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			l.log.Error(ctx, "Ignoring invalid config change", err, logger.Fields{"file": e.Name})
			return
		}
		l.log.Info(ctx, "Config file changed", logger.Fields{"file": e.Name, "op": e.Op.String()})
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.organization", constants.DefaultOrganization)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("keys.bits", constants.DefaultKeyBits)
	v.SetDefault("keys.private_key_format", string(constants.DefaultPrivateKeyFormat))
	v.SetDefault("keys.comment", constants.DefaultKeyComment)

	v.SetDefault("storage.backend", string(constants.StorageBackendMemory))
	v.SetDefault("storage.timeout", constants.StorageOperationTimeout)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "keystore")
	v.SetDefault("database.database", "keystore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.conn_timeout", 10*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("sqlite.path", "keystore.db")

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.sentinel_master", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enable_tls", false)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.key_prefix", constants.RedisKeyPrefix)

	v.SetDefault("vault.address", "http://127.0.0.1:8200")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.mount_path", constants.DefaultVaultMount)
	v.SetDefault("vault.path_prefix", constants.DefaultVaultPathPrefix)
	v.SetDefault("vault.timeout", 10*time.Second)

	// Secrets have empty defaults so AutomaticEnv overrides reach Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("security.key_encryption_secret", "")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", constants.DefaultKafkaTopic)
	v.SetDefault("kafka.batch_size", 1)
	v.SetDefault("kafka.batch_timeout", 10*time.Millisecond)
	v.SetDefault("kafka.signing_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sample_rate", 0.1)

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.pprof_enabled", false)
}

//Personal.AI order the ending
