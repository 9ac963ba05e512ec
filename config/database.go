package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Server     string `yaml:"server"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	SQLitePath string `yaml:"sqlite_path"`
}

func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", c.SQLitePath)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&multiStatements=true&loc=UTC",
			c.User, c.Password, c.Server, c.Database)
	}
}

// ConnectDatabase opens and pings the configured SQL store. It is not used
// with the memory driver.
func ConnectDatabase(c *DatabaseConfig) (*sql.DB, error) {
	var driverName string
	switch c.Driver {
	case DriverMySQL:
		driverName = "mysql"
	case DriverSQLite:
		driverName = "sqlite"
		if dir := filepath.Dir(c.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("error creating database directory: %v", err)
			}
		}
	default:
		return nil, fmt.Errorf("driver %q has no SQL database", c.Driver)
	}

	db, err := sql.Open(driverName, c.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if c.Driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}
	return db, nil
}
