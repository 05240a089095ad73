//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/internal/domain/repository/repositorytest"
	"github.com/turtacn/keystore/pkg/logger"
)

func TestPostgresUserKeyRepositorySuite(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("keystore"),
		tcpostgres.WithUsername("keystore"),
		tcpostgres.WithPassword("keystore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "keystore",
		Password: "keystore",
		Database: "keystore",
		SSLMode:  "disable",
		MaxConns: 10,
	}

	conn, err := NewDBConnection(ctx, cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	health, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", health["status"])

	db, err := OpenGorm(conn)
	require.NoError(t, err)
	repo := NewUserKeyRepository(db, "postgres", logger.NewNoopLogger())
	require.NoError(t, repo.AutoMigrate(ctx))

	suite.Run(t, &repositorytest.UserKeyRepositorySuite{
		NewRepository: func(t *testing.T) repository.UserKeyRepository {
			require.NoError(t, db.Exec("TRUNCATE TABLE user_keys").Error)
			return repo
		},
	})
}
