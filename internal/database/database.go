package database

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"
	"time"

	"apexdispatch/internal/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations
var migrationFS embed.FS

type DB struct {
	*sqlx.DB
	driver string
}

// New connects to the store. driver is "postgres" or "sqlite3"; the latter needs the sqlite build tag.
func New(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver == "postgres" && !strings.Contains(dsn, "connect_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&connect_timeout=10"
		} else {
			dsn += "?connect_timeout=10"
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: driver}, nil
}

// RunMigrations applies the embedded schema for the connected driver.
func (db *DB) RunMigrations(ctx context.Context) error {
	dir := path.Join("migrations", "postgres")
	if db.driver == "sqlite3" {
		dir = path.Join("migrations", "sqlite")
	}
	entries, err := migrationFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	log := logging.FromContext(ctx)
	applied := 0
	for _, entry := range entries {
		migrationSQL, err := migrationFS.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		for _, stmt := range splitStatements(string(migrationSQL)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				// Ignore errors from already-applied migrations
				if !strings.Contains(err.Error(), "already exists") &&
					!strings.Contains(err.Error(), "duplicate") {
					return fmt.Errorf("failed to run migration %s: %w", entry.Name(), err)
				}
			}
		}
		log.WithField("migration", entry.Name()).Debug("Applied migration")
		applied++
	}
	log.WithField("count", applied).Info("Migrations applied")
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Ping reports whether the store answers within ctx.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}
