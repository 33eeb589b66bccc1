package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Reset     ResetConfig     `yaml:"reset"`
	Worker    WorkerConfig    `yaml:"worker"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// TransferConfig tunes conflict retries and the initiator's publish deadline.
type TransferConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type RecoveryConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type ResetConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// NotifyConfig enables the settlement webhook when WebhookURL is set.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Secret     string        `yaml:"secret"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MetricsConfig is the listen port of /metrics for the worker and poller;
// the server exposes it on its API port.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Notify.Secret = secret
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "transaction-processing"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "transaction-service-group"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Transfer.MaxAttempts == 0 {
		c.Transfer.MaxAttempts = 3
	}
	if c.Transfer.BaseDelay == 0 {
		c.Transfer.BaseDelay = 100 * time.Millisecond
	}
	if c.Transfer.MaxDelay == 0 {
		c.Transfer.MaxDelay = 2 * time.Second
	}
	if c.Transfer.PublishTimeout == 0 {
		c.Transfer.PublishTimeout = 5 * time.Second
	}
	if c.Recovery.Interval == 0 {
		c.Recovery.Interval = time.Minute
	}
	if c.Recovery.StaleAfter == 0 {
		c.Recovery.StaleAfter = 5 * time.Minute
	}
	if c.Recovery.BatchSize == 0 {
		c.Recovery.BatchSize = 100
	}
	if c.Reset.Interval == 0 {
		c.Reset.Interval = 24 * time.Hour
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 5 * time.Second
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
