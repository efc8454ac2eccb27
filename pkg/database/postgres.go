package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docshift/docshift/pkg/config"
)

// PostgreSQL represents a PostgreSQL database connection
type PostgreSQL struct {
	pool *pgxpool.Pool
}

type PostgreSQLConfig struct {
	User              string
	Password          string
	Host              string
	Port              int
	Database          string
	SSLMode           string
	MaxConnections    int32
	ConnectionTimeout time.Duration
}

// New creates a new PostgreSQL instance
func New(ctx context.Context, cfg PostgreSQLConfig) (*PostgreSQL, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required - must be provided in config or DOCSHIFT_TARGET_DATABASE environment variable")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}

	// Use pgxpool.ParseConfig to handle special characters in passwords
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	// Set connection parameters individually to avoid URL parsing issues
	poolConfig.ConnConfig.Host = cfg.Host
	poolConfig.ConnConfig.Port = uint16(cfg.Port)
	poolConfig.ConnConfig.Database = cfg.Database
	poolConfig.ConnConfig.User = cfg.User
	poolConfig.ConnConfig.Password = cfg.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	// Set SSL mode through TLS config
	switch cfg.SSLMode {
	case "disable":
		poolConfig.ConnConfig.TLSConfig = nil
	case "require", "prefer":
		// pgx handles the TLS negotiation automatically for these modes
	default:
		// For other SSL modes, use default behavior
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnIdleTime = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgreSQL{pool: pool}, nil
}

// FromGlobalConfig creates a PostgreSQL config from the global configuration,
// falling back to DOCSHIFT_TARGET_* environment variables for unset keys
func FromGlobalConfig(cfg *config.Config) PostgreSQLConfig {
	pgConfig := PostgreSQLConfig{
		Host:              firstNonEmpty(cfg.Get("target.host"), os.Getenv("DOCSHIFT_TARGET_HOST"), "localhost"),
		User:              firstNonEmpty(cfg.Get("target.user"), os.Getenv("DOCSHIFT_TARGET_USER"), "postgres"),
		Password:          firstNonEmpty(cfg.Get("target.password"), os.Getenv("DOCSHIFT_TARGET_PASSWORD")),
		Database:          firstNonEmpty(cfg.Get("target.database"), os.Getenv("DOCSHIFT_TARGET_DATABASE")),
		SSLMode:           firstNonEmpty(cfg.Get("target.sslmode"), "prefer"),
		Port:              5432,
		MaxConnections:    10,
		ConnectionTimeout: 30 * time.Second,
	}

	if portStr := firstNonEmpty(cfg.Get("target.port"), os.Getenv("DOCSHIFT_TARGET_PORT")); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			pgConfig.Port = port
		}
	}

	return pgConfig
}

// Pool returns the underlying connection pool
func (p *PostgreSQL) Pool() *pgxpool.Pool {
	return p.pool
}

// Close closes the database connection pool
func (p *PostgreSQL) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
