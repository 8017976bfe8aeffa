package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osiastedian/syshub/libs/password"
)

// seedTestData adds accounts only the end-to-end suites use: one with SMS
// verification on and one suspended.
func seedTestData(ctx context.Context, pool *pgxpool.Pool) error {
	smsUserID := uuid.MustParse("00000000-0000-0000-0000-000000000003")
	suspendedUserID := uuid.MustParse("00000000-0000-0000-0000-000000000004")

	smsHash, err := password.Hash("sms-user-123", password.DefaultParams())
	if err != nil {
		return err
	}
	suspendedHash, err := password.Hash("suspended-123", password.DefaultParams())
	if err != nil {
		return err
	}

	now := time.Now()

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, status, phone_number, sms_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, TRUE, $5, $5)
		ON CONFLICT (email) DO UPDATE SET sms_enabled = TRUE, gauth_enabled = FALSE, phone_number = EXCLUDED.phone_number
	`, smsUserID, "sms@example.com", smsHash, "+15555550100", now)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'suspended', $4, $4)
		ON CONFLICT (email) DO UPDATE SET status = 'suspended'
	`, suspendedUserID, "suspended@example.com", suspendedHash, now)
	return err
}
