package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osiastedian/syshub/libs/database"
)

// SetupTestDB connects with the POSTGRES_* settings and applies the schema.
func SetupTestDB() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, database.FromEnv())
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// CleanupTestData removes everything except the seeded accounts and their
// rows.
func CleanupTestData(ctx context.Context, pool *pgxpool.Pool) error {
	seeded := []any{DemoUserID, SecureUserID}
	queries := []struct {
		sql  string
		args []any
	}{
		{"DELETE FROM proposal_votes", nil},
		{"DELETE FROM proposals WHERE owner_id IS NULL OR owner_id NOT IN ($1, $2)", seeded},
		{"DELETE FROM masternodes WHERE owner_id IS NOT NULL AND owner_id NOT IN ($1, $2)", seeded},
		{"DELETE FROM refresh_tokens", nil},
		{"DELETE FROM password_resets", nil},
		{"DELETE FROM audit_logs", nil},
		{"DELETE FROM users WHERE id NOT IN ($1, $2)", seeded},
	}

	for _, q := range queries {
		if _, err := pool.Exec(ctx, q.sql, q.args...); err != nil {
			return fmt.Errorf("cleanup %q: %w", q.sql, err)
		}
	}
	return nil
}
