package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// PostgresConfig holds connection settings for PostgreSQL
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, sslMode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return dsn
}

// SQLiteConfig holds settings for the embedded SQLite backend
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DSN returns the modernc sqlite data source name
func (c SQLiteConfig) DSN() string {
	return c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Dialect captures the SQL differences between supported databases
type Dialect struct {
	Name string

	// DriverName is the database/sql driver to open
	DriverName string

	// lockSuffix is appended to the counter read inside an update
	lockSuffix string

	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool

	isConflict func(err error) bool
}

// Postgres uses lib/pq and serializes updates of one name with a row lock
// on its counter.
var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "postgres",
	lockSuffix: " FOR UPDATE",
	numbered:   true,
	isConflict: isPostgresConflict,
}

// SQLite uses the pure Go modernc driver. The store limits it to one
// connection, which serializes transactions.
var SQLite = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite",
	isConflict: isSQLiteConflict,
}

// rebind rewrites ? placeholders for dialects that number them
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPostgresConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
		return true
	}
	return false
}

func isSQLiteConflict(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_BUSY:
		return true
	}
	return false
}
