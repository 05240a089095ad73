// Package constants defines system-wide constants for the User Key Store service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Key Material Constants
// ================================================================================

// PrivateKeyFormat selects the PEM encoding used for generated private keys
type PrivateKeyFormat string

const (
	// PrivateKeyFormatPKCS1 encodes the key as an "RSA PRIVATE KEY" PEM block
	PrivateKeyFormatPKCS1 PrivateKeyFormat = "pkcs1"

	// PrivateKeyFormatOpenSSH encodes the key as an "OPENSSH PRIVATE KEY" PEM block
	PrivateKeyFormatOpenSSH PrivateKeyFormat = "openssh"
)

const (
	// DefaultKeyBits is the RSA modulus size used when none is configured
	DefaultKeyBits = 2048

	// MinKeyBits is the smallest modulus the generator accepts
	MinKeyBits = 1024

	// MaxKeyBits bounds generation time for misconfigured deployments
	MaxKeyBits = 16384

	// DefaultPrivateKeyFormat is the encoding used when none is configured
	DefaultPrivateKeyFormat = PrivateKeyFormatPKCS1

	// DefaultKeyComment is appended to authorized_keys lines when none is configured
	DefaultKeyComment = ""
)

// ================================================================================
// Storage Backend Constants
// ================================================================================

// StorageBackend names a UserKeyRepository implementation
type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendRedis    StorageBackend = "redis"
	StorageBackendVault    StorageBackend = "vault"
)

const (
	// RedisKeyPrefix namespaces user key entries in Redis
	RedisKeyPrefix = "keystore:userkey:"

	// DefaultVaultMount is the KV v2 mount holding user keys
	DefaultVaultMount = "secret"

	// DefaultVaultPathPrefix is the path under the mount where user keys live
	DefaultVaultPathPrefix = "keystore/users"

	// StorageOperationTimeout bounds a single repository round trip
	StorageOperationTimeout = 5 * time.Second
)

// ================================================================================
// Key Event Constants
// ================================================================================

// KeyEventType represents the type of key lifecycle event
type KeyEventType string

const (
	// KeyEventGenerated is emitted when a keypair is created for an owner
	KeyEventGenerated KeyEventType = "key.generated"

	// KeyEventDeleted is emitted when an owner's keypair is removed
	KeyEventDeleted KeyEventType = "key.deleted"

	// KeyEventAccessDenied is emitted when a requester is refused access to a key
	KeyEventAccessDenied KeyEventType = "key.access_denied"
)

// DefaultKafkaTopic is the topic key events are written to
const DefaultKafkaTopic = "keystore-key-events"

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode represents a machine readable error code
type ErrorCode string

const (
	ErrCodeUnauthenticated  ErrorCode = "unauthenticated"
	ErrCodeForbidden        ErrorCode = "forbidden"
	ErrCodeGenerationFailed ErrorCode = "generation_failed"
	ErrCodeStorageFailed    ErrorCode = "storage_failed"
	ErrCodeInvalidRequest   ErrorCode = "invalid_request"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeInternal         ErrorCode = "internal_error"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyRequester is the key for the authenticated caller's user id
	ContextKeyRequester ContextKey = "requester_id"

	// ContextKeyLogger is the key for a request scoped logger
	ContextKeyLogger ContextKey = "logger"
)

// ================================================================================
// HTTP Constants
// ================================================================================

const (
	// HeaderAuthorization carries the bearer token
	HeaderAuthorization = "Authorization"

	// HeaderRequestID carries the request correlation id
	HeaderRequestID = "X-Request-ID"

	// BearerPrefix precedes the token in the Authorization header
	BearerPrefix = "Bearer "

	// DefaultOrganization is the only organization served unless configured otherwise
	DefaultOrganization = "jenkins"
)

// ServiceName is used for tracing, metrics namespaces and gRPC health
const ServiceName = "keystore"

//Personal.AI order the ending
