package config

import (
	"fmt"
	"os"
	"time"

	base "github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/database"
)

// defaultAnchor is a known mainnet superblock; later ones are projected from it.
const defaultAnchor = "2025-12-18T14:42:30Z"

type Config struct {
	App              base.AppConfig
	JWTSecret        string
	DB               database.Config
	KafkaBrokers     []string
	StatsRefresh     time.Duration
	SuperblockAnchor time.Time
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("SYSHUB_CONFIG"), "governance")
	if err != nil {
		return nil, err
	}

	anchor, err := time.Parse(time.RFC3339, base.EnvString("SYSHUB_SUPERBLOCK_ANCHOR", defaultAnchor))
	if err != nil {
		return nil, fmt.Errorf("SYSHUB_SUPERBLOCK_ANCHOR must be RFC3339: %w", err)
	}

	cfg := &Config{
		App:              *appCfg,
		JWTSecret:        base.EnvString("SYSHUB_JWT_SECRET", ""),
		DB:               database.FromEnv(),
		KafkaBrokers:     base.EnvList("SYSHUB_KAFKA_BROKERS", nil),
		StatsRefresh:     base.EnvDuration("SYSHUB_STATS_REFRESH", time.Minute),
		SuperblockAnchor: anchor.UTC(),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SYSHUB_JWT_SECRET must be set")
	}

	return cfg, nil
}
