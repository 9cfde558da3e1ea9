package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection. A connection failure here is fatal
// to the run.
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A batch run holds few connections; keep the pool small
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the schema the invoicer reads and writes
func (d *Database) RunMigrations() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dropshippers (
		id SERIAL PRIMARY KEY,
		code VARCHAR(10) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		ship_method VARCHAR(50),
		invoice_email VARCHAR(200),
		books_customer_id VARCHAR(50),
		ftp_folder_name VARCHAR(100) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS file_formats (
		id SERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL,
		type VARCHAR(20) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS file_format_headers (
		id SERIAL PRIMARY KEY,
		format_id INT NOT NULL REFERENCES file_formats(id),
		position INT NOT NULL,
		header_name VARCHAR(100) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dropshipper_file_formats (
		dropshipper_id INT NOT NULL REFERENCES dropshippers(id),
		format_id INT NOT NULL REFERENCES file_formats(id),
		PRIMARY KEY (dropshipper_id, format_id)
	);

	CREATE TABLE IF NOT EXISTS purchase_orders (
		id SERIAL PRIMARY KEY,
		purchase_order_number VARCHAR(50) NOT NULL UNIQUE,
		external_order_id VARCHAR(50) NOT NULL,
		dropshipper_id INT NOT NULL REFERENCES dropshippers(id),
		shipping_cost DECIMAL(10, 2) NOT NULL DEFAULT 0,
		tracking_number VARCHAR(100),
		tracking_date TIMESTAMP,
		address VARCHAR(200),
		city VARCHAR(100),
		state VARCHAR(10),
		country VARCHAR(2),
		postal_code VARCHAR(20),
		subtotal DECIMAL(10, 2),
		tax DECIMAL(10, 2),
		total DECIMAL(10, 2),
		is_invoiced BOOLEAN NOT NULL DEFAULT FALSE,
		invoiced_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_orders_invoiceable
		ON purchase_orders(is_invoiced) WHERE tracking_number IS NOT NULL;

	CREATE TABLE IF NOT EXISTS purchase_order_items (
		id SERIAL PRIMARY KEY,
		purchase_order_id INT NOT NULL REFERENCES purchase_orders(id),
		sku VARCHAR(100) NOT NULL,
		quantity INT NOT NULL,
		price DECIMAL(10, 2)
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_order_items_po
		ON purchase_order_items(purchase_order_id);

	-- Rotated refresh token for the accounting API
	CREATE TABLE IF NOT EXISTS books_tokens (
		id INT PRIMARY KEY DEFAULT 1,
		refresh_token TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`

	_, err := d.DB.Exec(schema)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
