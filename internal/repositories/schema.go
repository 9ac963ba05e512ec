package repositories

import (
	"database/sql"
	"fmt"
)

// Schema is the DDL shared by MySQL and SQLite. Timestamps are unix
// milliseconds so both drivers scan them the same way.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		name VARCHAR(40) NOT NULL PRIMARY KEY,
		record_count INT NOT NULL DEFAULT 0,
		imported_byte_size BIGINT NOT NULL DEFAULT 0,
		last_import_at BIGINT NULL,
		phone_count INT NOT NULL DEFAULT 0,
		region_counts TEXT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lead_records (
		dataset_name VARCHAR(40) NOT NULL,
		id VARCHAR(20) NOT NULL,
		position INT NOT NULL,
		last_name VARCHAR(255) NULL,
		first_name VARCHAR(255) NULL,
		raw_full_name VARCHAR(255) NULL,
		mobile VARCHAR(10) NULL,
		voip VARCHAR(10) NULL,
		email VARCHAR(255) NULL,
		address VARCHAR(255) NULL,
		city VARCHAR(255) NULL,
		postal_code VARCHAR(5) NULL,
		region VARCHAR(3) NULL,
		iban VARCHAR(64) NULL,
		bic VARCHAR(11) NULL,
		birth_date VARCHAR(64) NULL,
		status VARCHAR(255) NULL,
		notes TEXT NULL,
		next_appointment_at BIGINT NULL,
		PRIMARY KEY (dataset_name, id)
	)`,
	`CREATE TABLE IF NOT EXISTS callers (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		active TINYINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		record_id VARCHAR(20) NOT NULL,
		dataset_name VARCHAR(40) NOT NULL,
		operator_id BIGINT NOT NULL,
		scheduled_at BIGINT NOT NULL,
		remind_at BIGINT NOT NULL,
		sent TINYINT NOT NULL DEFAULT 0,
		sent_at BIGINT NULL,
		notify_target VARCHAR(255) NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %v", err)
		}
	}
	return nil
}
