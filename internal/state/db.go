// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var (
	ErrDBNotInitialized = errors.New("database not initialized")
	ErrNoRecord         = errors.New("no vault record stored")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the connection string understood by lib/pq.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to the PostgreSQL database")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Amounts and ticks are unsigned 64-bit; NUMERIC(20, 0) holds all of them.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_records (
		record_id BIGSERIAL PRIMARY KEY,
		tick NUMERIC(20, 0) NOT NULL,
		version TEXT NOT NULL,
		record BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vault_records_tick ON vault_records(tick DESC);

	CREATE TABLE IF NOT EXISTS vault_configs (
		config_id SERIAL PRIMARY KEY,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		config JSONB NOT NULL,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vault_configs_active ON vault_configs(is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS reconcile_rounds (
		round_id UUID PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		tick NUMERIC(20, 0) NOT NULL,
		succeeded TEXT[] NOT NULL,
		failed TEXT[] NOT NULL,
		skipped TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reconcile_rounds_created ON reconcile_rounds(created_at DESC);

	CREATE TABLE IF NOT EXISTS reconcile_receipts (
		receipt_id BIGSERIAL PRIMARY KEY,
		round_id UUID NOT NULL REFERENCES reconcile_rounds(round_id) ON DELETE CASCADE,
		provider VARCHAR(32) NOT NULL,
		action VARCHAR(16) NOT NULL,
		amount NUMERIC(20, 0) NOT NULL,
		status VARCHAR(16) NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_reconcile_receipts_round ON reconcile_receipts(round_id);
	CREATE INDEX IF NOT EXISTS idx_reconcile_receipts_provider ON reconcile_receipts(provider);

	-- Single-row logical tick counter
	CREATE TABLE IF NOT EXISTS tick_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_tick NUMERIC(20, 0) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO tick_counter (id, current_tick)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// Tables lists every table owned by the allocator, dependents first.
var Tables = []string{"reconcile_receipts", "reconcile_rounds", "vault_records", "vault_configs", "tick_counter"}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema drops every allocator table.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Warn().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// u64 renders an unsigned value for a NUMERIC column; database/sql rejects uint64
// arguments with the high bit set.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(column, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return v, nil
}
