package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens the pool, pings it and creates missing tables.
func ConnectPostgres(ctx context.Context, postgresURI string, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("✅ Connected to PostgreSQL")

	if err = InitPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("✅ PostgreSQL tables initialized")
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL DEFAULT '',
		location VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'new',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		membership_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// One row per user; deleted on completion or cancel.
	`CREATE TABLE IF NOT EXISTS sessions (
		user_id VARCHAR(64) PRIMARY KEY,
		flow VARCHAR(32) NOT NULL,
		step INTEGER NOT NULL CHECK (step >= 0),
		data JSONB NOT NULL DEFAULT '{}',
		recent_events JSONB NOT NULL DEFAULT '[]',
		started_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS activity_counters (
		user_id VARCHAR(64) NOT NULL,
		day DATE NOT NULL,
		listings_created INTEGER NOT NULL DEFAULT 0,
		searches_run INTEGER NOT NULL DEFAULT 0,
		messages_sent INTEGER NOT NULL DEFAULT 0,
		admin_chats_started INTEGER NOT NULL DEFAULT 0,
		last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(64) PRIMARY KEY,
		seller_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		category VARCHAR(64) NOT NULL,
		price BIGINT NOT NULL CHECK (price > 0),
		description TEXT NOT NULL,
		location VARCHAR(64) NOT NULL,
		photos TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS payment_requests (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		plan VARCHAR(32) NOT NULL,
		months INTEGER NOT NULL,
		amount BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_users_status ON users(status)`,
	`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_counters_day ON activity_counters(day)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_category_location ON listings(category, location)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_requests_status ON payment_requests(status)`,
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables(ctx context.Context, db *sql.DB) error {
	for _, query := range schema {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func DisconnectPostgres(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
