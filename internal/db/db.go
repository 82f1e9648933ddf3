// Package db persists analysis runs and leg summaries in PostgreSQL or SQLite.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps a database connection with helper methods.
type DB struct {
	*sqlx.DB
	config config.DatabaseConfig
	log    *logger.Logger
}

// DataSourceName builds the driver connection string for cfg.
func DataSourceName(cfg config.DatabaseConfig) (driver, dsn string, err error) {
	switch cfg.Driver {
	case "postgres":
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
		), nil
	case "sqlite":
		path := cfg.Database
		if path == "" || path == ":memory:" {
			path = ":memory:"
		}
		if !strings.HasPrefix(path, "file:") {
			path = "file:" + path
		}
		return "sqlite", path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	}
	return "", "", fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}

// Connect opens and pings the configured database.
func Connect(cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	driver, dsn, err := DataSourceName(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	sqlDB, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool. An in-memory SQLite database exists per
	// connection, so it is pinned to one.
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		config: cfg,
		log:    log.Named("db"),
	}, nil
}

// InitSchema creates the tables if they do not exist.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// CleanupOldData removes runs, and their legs, created before now - maxAge.
// Returns the number of runs removed.
func (db *DB) CleanupOldData(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Unix()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, db.Rebind(
		`DELETE FROM leg_summaries WHERE run_id IN (SELECT run_id FROM analysis_runs WHERE created_at < ?)`),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old legs: %w", err)
	}

	res, err := tx.ExecContext(ctx, db.Rebind(`DELETE FROM analysis_runs WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	if n > 0 {
		db.log.Info("removed old analysis runs", logger.Int64("runs", n))
	}
	return n, nil
}

// Stats is a snapshot of stored totals.
type Stats struct {
	Runs     int64   `db:"runs" json:"runs"`
	Legs     int64   `db:"legs" json:"legs"`
	Aircraft int64   `db:"aircraft" json:"aircraft"`
	FuelKg   float64 `db:"fuel_kg" json:"fuel_kg"`
	CO2Kg    float64 `db:"co2_kg" json:"co2_kg"`
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM analysis_runs) AS runs,
			(SELECT COUNT(*) FROM leg_summaries) AS legs,
			(SELECT COUNT(DISTINCT icao24) FROM analysis_runs) AS aircraft,
			(SELECT COALESCE(SUM(fuel_kg), 0) FROM leg_summaries) AS fuel_kg,
			(SELECT COALESCE(SUM(co2_kg), 0) FROM leg_summaries) AS co2_kg`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	return st, nil
}
