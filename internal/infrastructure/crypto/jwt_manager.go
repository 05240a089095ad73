package crypto

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ service.IdentityVerifier = (*JWTManager)(nil)

// JWTManager issues and verifies HS256 bearer tokens whose subject is the user id.
type JWTManager struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	log      logger.Logger
}

// NewJWTManager creates a new JWTManager.
func NewJWTManager(cfg config.AuthConfig, log logger.Logger) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.ErrInvalidRequest("jwt secret must not be empty")
	}
	return &JWTManager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		log:      log.WithComponent("jwt_manager"),
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (m *JWTManager) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.ErrInvalidRequest("token subject must not be empty")
	}
	if ttl <= 0 {
		return "", errors.ErrInvalidRequest("token ttl must be positive")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.ErrInternal("failed to sign token").WithCause(err)
	}
	return signed, nil
}

// Verify parses tokenString and validates signature, expiry, issuer and audience.
func (m *JWTManager) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrUnauthenticated("token has expired").WithCause(err)
		}
		return nil, errors.ErrUnauthenticated("token is invalid").WithCause(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.ErrUnauthenticated("token has no subject")
	}
	return claims, nil
}

// VerifyIdentity returns the user id carried by token.
func (m *JWTManager) VerifyIdentity(ctx context.Context, token string) (string, error) {
	claims, err := m.Verify(token)
	if err != nil {
		m.log.Debug(ctx, "Rejected bearer token", logger.Fields{"reason": err.Error()})
		return "", err
	}
	return claims.Subject, nil
}
