package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/boxoffice/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// Dialect builds the gorm dialector for cfg.DBType. Connections run in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn := cfg.DBDSN
	switch strings.ToLower(cfg.DBType) {
	case DialectPostgres, "postgresql":
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
				cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		}
		return postgres.Open(dsn), nil
	case DialectMySQL:
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		}
		return mysql.Open(dsn), nil
	case DialectSQLite:
		if dsn == "" {
			dsn = sqliteDSN(cfg.DBName)
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

// sqliteDSN turns a bare database name into a file DSN with foreign keys
// and a busy timeout.
func sqliteDSN(name string) string {
	if name == "" || name == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	if !strings.HasSuffix(name, ".db") {
		name += ".db"
	}
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	return "file:" + name + "?" + q.Encode()
}
