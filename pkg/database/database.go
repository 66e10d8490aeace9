package database

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/workaandrey/task-manager/configs"
)

// DSN returns the driver name and data source name for cfg.
func DSN(cfg configs.Config) (string, string, error) {
	switch cfg.DBDriver {
	case configs.DriverPostgres:
		return configs.DriverPostgres, fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable client_encoding=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, postgresEncoding(cfg.DBCharset)), nil
	case configs.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPass
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.ClientFoundRows = true
		mc.Params = map[string]string{"charset": cfg.DBCharset}
		return configs.DriverMySQL, mc.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// utf8mb4 is a MySQL name; postgres only knows UTF8.
func postgresEncoding(charset string) string {
	switch charset {
	case "", "utf8", "utf8mb4":
		return "UTF8"
	default:
		return charset
	}
}

// ConnectDB opens the pool and verifies the connection.
func ConnectDB(cfg configs.Config) (*sqlx.DB, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
