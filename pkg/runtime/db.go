package runtime

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes a PostgreSQL connection.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	URL      string `mapstructure:"url"` // overrides the discrete fields when set
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "postgres",
		User:     "postgres",
		SSLMode:  "prefer",
		MaxConns: 10,
		MinConns: 2,
	}
}

// ConnString renders the pgx connection string.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode,
	)
}

// Connect opens a connection pool, pings it and wraps it as an executor.
func Connect(ctx context.Context, config *Config, opts ...PGOption) (*PG, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, errors.Wrap(err, "parse connection config")
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return NewPG(pool, opts...), nil
}

// ConnectURL opens a pool from a connection URL.
func ConnectURL(ctx context.Context, url string, opts ...PGOption) (*PG, error) {
	return Connect(ctx, &Config{URL: url}, opts...)
}
