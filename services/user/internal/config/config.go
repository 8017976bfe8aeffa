package config

import (
	"fmt"
	"os"
	"time"

	base "github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/database"
	"github.com/osiastedian/syshub/libs/rate"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// CodeLimit caps verification-code checks per user. Auth must use the same
// values and redis.
type CodeLimit struct {
	Checks int
	Window time.Duration
	Prefix string
}

type Config struct {
	App          base.AppConfig
	JWTSecret    string
	ReauthMaxAge time.Duration
	DB           database.Config
	Challenge    RedisConfig
	CodeLimit    CodeLimit
	KafkaBrokers []string
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("SYSHUB_CONFIG"), "user")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:          *appCfg,
		JWTSecret:    base.EnvString("SYSHUB_JWT_SECRET", ""),
		ReauthMaxAge: base.EnvDuration("SYSHUB_REAUTH_TTL", 5*time.Minute),
		DB:           database.FromEnv(),
		Challenge: RedisConfig{
			Addr:     base.EnvString("SYSHUB_CHALLENGE_REDIS_ADDR", ""),
			Password: base.EnvString("SYSHUB_CHALLENGE_REDIS_PASSWORD", ""),
			DB:       base.EnvInt("SYSHUB_CHALLENGE_REDIS_DB", 0),
			Prefix:   base.EnvString("SYSHUB_CHALLENGE_REDIS_PREFIX", "syshub:sms:"),
		},
		CodeLimit: CodeLimit{
			Checks: base.EnvInt("SYSHUB_CODE_CHECK_LIMIT", rate.DefaultCodeChecks),
			Window: base.EnvDuration("SYSHUB_CODE_CHECK_WINDOW", rate.DefaultCodeWindow),
			Prefix: base.EnvString("SYSHUB_CODE_CHECK_PREFIX", rate.DefaultPrefix),
		},
		KafkaBrokers: base.EnvList("SYSHUB_KAFKA_BROKERS", nil),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SYSHUB_JWT_SECRET must be set")
	}

	return cfg, nil
}
