package database

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestDSNEscapesCredentials(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, Name: "syshub", User: "sys", Password: "p@ss/word", SSLMode: "require"}
	dsn := cfg.DSN()
	if !strings.HasPrefix(dsn, "postgres://sys:p%40ss%2Fword@db:5433/syshub") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if !strings.HasSuffix(dsn, "sslmode=require") {
		t.Fatalf("expected sslmode in dsn: %s", dsn)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "6543")
	cfg := FromEnv()
	if cfg.Port != 6543 || cfg.Name == "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnsureSchemaIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, FromEnv())
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	defer pool.Close()

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}
}
