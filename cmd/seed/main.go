package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/osiastedian/syshub/libs/database"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/syscoin"
)

var (
	demoUserID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	secureUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

const (
	seedPassword     = "Sentry-Node-1"
	secureTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	masternodeCount  = 25
	bech32Charset    = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

func main() {
	_ = godotenv.Load()

	env := getEnv("SYSHUB_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: SYSHUB_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, database.FromEnv())
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	fmt.Println("Seeding database...")

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	fmt.Println("✓ Schema applied")

	if err := seedUsers(ctx, pool); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	fmt.Println("✓ Users seeded")

	nodes, err := seedMasternodes(ctx, pool)
	if err != nil {
		log.Fatalf("seed masternodes: %v", err)
	}
	fmt.Println("✓ Masternodes seeded")

	if err := seedProposals(ctx, pool, nodes); err != nil {
		log.Fatalf("seed proposals: %v", err)
	}
	fmt.Println("✓ Proposals seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTestData(ctx, pool); err != nil {
			log.Fatalf("seed test data: %v", err)
		}
		fmt.Println("✓ Test data seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Credentials:")
	fmt.Println("  Email: demo@example.com")
	fmt.Printf("  Password: %s\n", seedPassword)
	fmt.Println("  Email: secure@example.com (authenticator app)")
	fmt.Printf("  Password: %s\n", seedPassword)

	if env == "dev" {
		fmt.Println("\nAuthenticator secret (DEV ONLY):")
		fmt.Printf("  secure@example.com: %s\n", secureTOTPSecret)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	hash, err := password.Hash(seedPassword, password.DefaultParams())
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	now := time.Now()

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, status, voting_address, sms_enabled, gauth_enabled, totp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, FALSE, FALSE, NULL, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    status = EXCLUDED.status,
		    sms_enabled = FALSE,
		    gauth_enabled = FALSE,
		    totp_secret = NULL,
		    updated_at = EXCLUDED.updated_at
	`, demoUserID, "demo@example.com", hash, address(0), now)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, status, sms_enabled, gauth_enabled, totp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', FALSE, TRUE, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    status = EXCLUDED.status,
		    sms_enabled = FALSE,
		    gauth_enabled = TRUE,
		    totp_secret = EXCLUDED.totp_secret,
		    updated_at = EXCLUDED.updated_at
	`, secureUserID, "secure@example.com", hash, secureTOTPSecret, now)
	return err
}

// address derives a stable, well-formed bech32 address for seed row i.
func address(i int) string {
	b := []byte("sys1q")
	for j := 0; j < 38; j++ {
		b = append(b, bech32Charset[(i*7+j*13)%len(bech32Charset)])
	}
	return string(b)
}

func seedMasternodes(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, masternodeCount)

	for i := 0; i < masternodeCount; i++ {
		id := uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0001-%012d", i+1))
		status := "ENABLED"
		if i%5 == 4 {
			status = "PRE_ENABLED"
		}
		var owner *uuid.UUID
		switch i {
		case 0, 1:
			owner = &demoUserID
		case 2:
			owner = &secureUserID
		}
		var lastPaid *time.Time
		if status == "ENABLED" {
			t := now.Add(-time.Duration(i+1) * 6 * time.Hour)
			lastPaid = &t
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO masternodes (id, collateral_txid, collateral_index, address, ip, label, status, collateral, rank, owner_id, last_paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (collateral_txid, collateral_index) DO UPDATE
			SET status = EXCLUDED.status,
			    rank = EXCLUDED.rank,
			    owner_id = EXCLUDED.owner_id,
			    last_paid_at = EXCLUDED.last_paid_at
		`, id, fmt.Sprintf("%064x", i+1), 0, address(i), fmt.Sprintf("203.0.113.%d:8369", i+1),
			fmt.Sprintf("sentry-%02d", i+1), status, decimal.NewFromInt(100000), i+1, owner, lastPaid)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedProposals(ctx context.Context, pool *pgxpool.Pool, nodes []uuid.UUID) error {
	sched := syscoin.DefaultSchedule(time.Date(2025, 12, 18, 14, 42, 30, 0, time.UTC))
	next := sched.Next(time.Now())

	proposals := []struct {
		id     uuid.UUID
		name   string
		amount string
		count  int
		owner  *uuid.UUID
		status string
		txid   *string
	}{
		{uuid.MustParse("00000000-0000-0000-0002-000000000001"), "sentry-dev-fund", "15000", 6, &demoUserID, "submitted", ptr(fmt.Sprintf("%064x", 1001))},
		{uuid.MustParse("00000000-0000-0000-0002-000000000002"), "community-translations", "2500.5", 3, nil, "submitted", ptr(fmt.Sprintf("%064x", 1002))},
		{uuid.MustParse("00000000-0000-0000-0002-000000000003"), "hackathon-prizes", "8000", 1, &secureUserID, "draft", nil},
	}

	for _, p := range proposals {
		_, err := pool.Exec(ctx, `
			INSERT INTO proposals (id, name, url, payment_address, payment_amount, payment_count, first_epoch, owner_id, status, collateral_txid)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (name) DO UPDATE
			SET status = EXCLUDED.status,
			    first_epoch = EXCLUDED.first_epoch,
			    collateral_txid = EXCLUDED.collateral_txid
		`, p.id, p.name, "https://forum.syscoin.org/t/"+p.name, address(100), decimal.RequireFromString(p.amount),
			p.count, next, p.owner, p.status, p.txid)
		if err != nil {
			return err
		}
	}

	// demo votes yes with both of its nodes, secure votes no with its one.
	votes := []struct {
		node    uuid.UUID
		user    uuid.UUID
		outcome string
	}{
		{nodes[0], demoUserID, "yes"},
		{nodes[1], demoUserID, "yes"},
		{nodes[2], secureUserID, "no"},
	}
	for _, v := range votes {
		_, err := pool.Exec(ctx, `
			INSERT INTO proposal_votes (proposal_id, masternode_id, user_id, outcome)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (proposal_id, masternode_id) DO UPDATE SET outcome = EXCLUDED.outcome
		`, proposals[0].id, v.node, v.user, v.outcome)
		if err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
