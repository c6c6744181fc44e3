package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/parcel-marketplace/internal/config"
)

// DSN builds the driver connection string for cfg.
//
// parseTime=true maps DATETIME to time.Time and loc=UTC keeps times
// consistent.  clientFoundRows=true makes RowsAffected count matched rows,
// which the guarded delivery UPDATE relies on.
func DSN(cfg config.Config) string {
	auth := cfg.DBUser
	if cfg.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.DBUser, cfg.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// Open connects to MySQL and verifies the connection.
func Open(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(26)  NOT NULL PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		first_name    VARCHAR(100) NOT NULL,
		last_name     VARCHAR(100) NOT NULL DEFAULT '',
		role          ENUM('customer','seller','service_provider','delivery_rider','admin') NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME(6)  NOT NULL,
		updated_at    DATETIME(6)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    VARCHAR(26)  NOT NULL,
		token_hash CHAR(64)     NOT NULL UNIQUE,
		expires_at DATETIME     NOT NULL,
		revoked_at DATETIME     NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_credentials_user (user_id),
		CONSTRAINT fk_credentials_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS delivery_requests (
		id                VARCHAR(26)  NOT NULL PRIMARY KEY,
		sender_id         VARCHAR(26)  NOT NULL,
		rider_id          VARCHAR(26)  NULL,
		pickup_location   VARCHAR(500) NOT NULL,
		delivery_location VARCHAR(500) NOT NULL,
		item_description  VARCHAR(1000) NOT NULL,
		receiver_name     VARCHAR(200) NOT NULL DEFAULT '',
		receiver_phone    VARCHAR(50)  NOT NULL DEFAULT '',
		notes             VARCHAR(1000) NOT NULL DEFAULT '',
		price_cents       BIGINT       NOT NULL DEFAULT 0,
		status            ENUM('pending','accepted','in_transit','delivered','cancelled') NOT NULL,
		created_at        DATETIME(6)  NOT NULL,
		updated_at        DATETIME(6)  NOT NULL,
		KEY idx_delivery_sender (sender_id, created_at),
		KEY idx_delivery_rider (rider_id, created_at),
		KEY idx_delivery_status (status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables the repositories use if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
