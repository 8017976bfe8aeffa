package config

import (
	"fmt"
	"os"
	"time"

	base "github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/database"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/rate"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RateLimitConfig struct {
	LoginLimit int
	Window     time.Duration
	Redis      RedisConfig
}

// CodeLimitConfig caps verification-code checks per user. The user service
// must use the same values and the challenge redis.
type CodeLimitConfig struct {
	Checks int
	Window time.Duration
	Prefix string
}

type Config struct {
	App              base.AppConfig
	JWTSecret        string
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ReauthTTL        time.Duration
	ResetTokenTTL    time.Duration
	MinPasswordScore int
	Argon2           password.Params
	DB               database.Config
	RateLimit        RateLimitConfig
	Challenge        RedisConfig
	CodeLimit        CodeLimitConfig
	KafkaBrokers     []string
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("SYSHUB_CONFIG"), "auth")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:              *appCfg,
		JWTSecret:        base.EnvString("SYSHUB_JWT_SECRET", ""),
		JWTIssuer:        base.EnvString("SYSHUB_JWT_ISSUER", "syshub-auth"),
		AccessTokenTTL:   base.EnvDuration("SYSHUB_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  base.EnvDuration("SYSHUB_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		ReauthTTL:        base.EnvDuration("SYSHUB_REAUTH_TTL", 5*time.Minute),
		ResetTokenTTL:    base.EnvDuration("SYSHUB_RESET_TOKEN_TTL", time.Hour),
		MinPasswordScore: base.EnvInt("SYSHUB_MIN_PASSWORD_SCORE", 2),
		Argon2: password.Params{
			Memory:      uint32(base.EnvInt("SYSHUB_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(base.EnvInt("SYSHUB_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(base.EnvInt("SYSHUB_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(base.EnvInt("SYSHUB_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(base.EnvInt("SYSHUB_ARGON2_KEY_LENGTH", 32)),
		},
		DB: database.FromEnv(),
		RateLimit: RateLimitConfig{
			LoginLimit: base.EnvInt("SYSHUB_LOGIN_RATE_LIMIT", 10),
			Window:     base.EnvDuration("SYSHUB_LOGIN_RATE_WINDOW", time.Minute),
			Redis: RedisConfig{
				Addr:     base.EnvString("SYSHUB_RATE_LIMIT_REDIS_ADDR", ""),
				Password: base.EnvString("SYSHUB_RATE_LIMIT_REDIS_PASSWORD", ""),
				DB:       base.EnvInt("SYSHUB_RATE_LIMIT_REDIS_DB", 0),
				Prefix:   base.EnvString("SYSHUB_RATE_LIMIT_REDIS_PREFIX", "syshub:auth:rl:"),
			},
		},
		Challenge: RedisConfig{
			Addr:     base.EnvString("SYSHUB_CHALLENGE_REDIS_ADDR", ""),
			Password: base.EnvString("SYSHUB_CHALLENGE_REDIS_PASSWORD", ""),
			DB:       base.EnvInt("SYSHUB_CHALLENGE_REDIS_DB", 0),
			Prefix:   base.EnvString("SYSHUB_CHALLENGE_REDIS_PREFIX", "syshub:sms:"),
		},
		CodeLimit: CodeLimitConfig{
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
