package config

import (
	"fmt"
	"os"

	base "github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/database"
)

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	MaxAttempts   int
}

type Config struct {
	App       base.AppConfig
	JWTSecret string
	DB        database.Config
	Kafka     KafkaConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("SYSHUB_CONFIG"), "masternode")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:       *appCfg,
		JWTSecret: base.EnvString("SYSHUB_JWT_SECRET", ""),
		DB:        database.FromEnv(),
		Kafka: KafkaConfig{
			Brokers:       base.EnvList("SYSHUB_KAFKA_BROKERS", nil),
			ConsumerGroup: base.EnvString("SYSHUB_KAFKA_CONSUMER_GROUP", "masternode-service"),
			MaxAttempts:   base.EnvInt("SYSHUB_KAFKA_MAX_ATTEMPTS", 3),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SYSHUB_JWT_SECRET must be set")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}

	return cfg, nil
}
