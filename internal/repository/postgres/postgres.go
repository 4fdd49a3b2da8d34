package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"irouter/internal/config"
	"irouter/internal/logger"
	"irouter/internal/repository/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Ensure PostgresDB implements the repository contracts
var (
	_ db.Database    = (*PostgresDB)(nil)
	_ db.VectorStore = (*PostgresDB)(nil)
)

// PostgresDB implements db.Database and db.VectorStore
type PostgresDB struct {
	conn *sql.DB
}

// NewPostgresDB opens a connection, verifies it and applies migrations from migrationsURL
func NewPostgresDB(ctx context.Context, dbConfig config.DatabaseConfig, migrationsURL string) (*PostgresDB, error) {
	logger.Log.WithField("host", dbConfig.Host).Info("Connecting to PostgreSQL")

	conn, err := sql.Open("postgres", dbConfig.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.Log.Info("Successfully connected to PostgreSQL")

	p := &PostgresDB{conn: conn}
	if err = p.RunMigrations(migrationsURL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return p, nil
}

// NewFromConn wraps an existing connection without running migrations
func NewFromConn(conn *sql.DB) *PostgresDB {
	return &PostgresDB{conn: conn}
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RunMigrations runs database migrations using golang-migrate
func (p *PostgresDB) RunMigrations(migrationsURL string) error {
	driver, err := postgres.WithInstance(p.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Database migrations applied successfully")
	return nil
}
