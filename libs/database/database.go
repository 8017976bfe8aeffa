package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/osiastedian/syshub/libs/config"
)

type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// FromEnv reads the POSTGRES_* variables shared by every service.
func FromEnv() Config {
	return Config{
		Host:     config.EnvString("POSTGRES_HOST", "localhost"),
		Port:     config.EnvInt("POSTGRES_PORT", 5432),
		Name:     config.EnvString("POSTGRES_DB", "syshub"),
		User:     config.EnvString("POSTGRES_USER", "syshub"),
		Password: config.EnvString("POSTGRES_PASSWORD", "syshub"),
		SSLMode:  config.EnvString("POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the tables used by all services. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
