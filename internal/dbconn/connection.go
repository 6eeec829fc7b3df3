// Package dbconn opens and configures the Postgres connection pool used
// by pkg/timerstore, per SPEC_FULL.md §6.3.
package dbconn

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Rocket-Innovation/mca-timer/internal/config"
)

// PoolConfig holds connection pool tuning separate from the credentials
// in config.Postgres, mirroring the teacher's split between connection
// identity and pool behavior.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig matches the teacher's own defaults for a small
// single-tenant service.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConnectionString builds a lib/pq DSN from pg.
func ConnectionString(pg config.Postgres) string {
	sslMode := pg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, sslMode)
}

// Connect opens a pooled connection and verifies it with a ping. Logging
// here uses *logrus.Logger rather than the engine's logr.Logger, matching
// the teacher's own database-layer code, which predates its logr
// migration and was never ported over.
func Connect(pg config.Postgres, pool PoolConfig, log *logrus.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", ConnectionString(pg))
	if err != nil {
		return nil, fmt.Errorf("dbconn: connect: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbconn: ping: %w", err)
	}

	log.WithFields(logrus.Fields{
		"host":   pg.Host,
		"port":   pg.Port,
		"dbname": pg.DBName,
	}).Info("connected to postgres")

	return db, nil
}
