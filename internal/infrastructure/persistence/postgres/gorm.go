package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// OpenGorm exposes the pgx pool held by conn to gorm.
func OpenGorm(conn *DBConnection) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(conn.Pool())
	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		return nil, errors.ErrStorageBackend("postgres", "open gorm", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database at path.
// SQLite allows one writer at a time, so the pool is capped at one connection.
func OpenSQLite(ctx context.Context, path string, log logger.Logger) (*gorm.DB, error) {
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, errors.ErrStorageBackend("sqlite", "open", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrStorageBackend("sqlite", "open", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(time.Hour)

	log.Info(ctx, "Opened SQLite key store", logger.Fields{"path": path})
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}
