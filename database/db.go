package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "shopdb")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Orders and products are owned by the storefront CRUD services;
	// the schema here is created defensively for local compose runs.
	// payment_events belongs to this service: the UNIQUE constraint on
	// (order_id, provider, transaction_id) is the idempotency contract.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price BIGINT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		total BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(32),
		payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		gateway VARCHAR(32),
		gateway_order_id VARCHAR(128),
		gateway_transaction_id VARCHAR(128),
		paid_at TIMESTAMPTZ,
		stock_adjusted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS order_items (
		order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		price BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payment_events (
		id BIGSERIAL PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
		provider VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(128) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		result_code VARCHAR(32) NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		discrepancy BIGINT NOT NULL DEFAULT 0,
		raw JSONB,
		received_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (order_id, provider, transaction_id)
	);
	`

	if _, err := db.Exec(createTableQuery); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
