package config

import "time"

type ServiceConfig struct {
	Name               string        `yaml:"name"`
	Environment        string        `yaml:"environment"`
	Version            string        `yaml:"version"`
	ClientURL          string        `yaml:"client_url"`
	WebhookSecret      string        `yaml:"webhook_secret"`
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance"`
	TransactionTTL     time.Duration `yaml:"transaction_ttl"`
	StoreTimeout       time.Duration `yaml:"store_timeout"`
	JWTSecret          string        `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type RetryConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	MaxRetries        int           `yaml:"max_retries"`
	HandlerTimeout    time.Duration `yaml:"handler_timeout"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	StaleThreshold    time.Duration `yaml:"stale_threshold"`
	DeliveryRetention time.Duration `yaml:"delivery_retention"`
}
