package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noah-isme/lan-attendance-api/pkg/config"
)

// Open returns a configured client for the driver selected in cfg.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// DSN resolves the driver name and connection string.
//
// SQLite runs in WAL mode with synchronous=FULL so a committed check-in survives
// an abrupt power loss on the classroom machine. Write transactions take the
// lock up front (_txlock=immediate) so two concurrent check-ins queue on the
// busy timeout instead of failing on lock upgrade.
func DSN(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = "attendance.db"
		}
		params := url.Values{}
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "FULL")
		params.Set("_busy_timeout", "5000")
		params.Set("_foreign_keys", "on")
		params.Set("_txlock", "immediate")
		return config.DriverSQLite, fmt.Sprintf("file:%s?%s", path, params.Encode()), nil
	case config.DriverPostgres:
		return config.DriverPostgres, fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
