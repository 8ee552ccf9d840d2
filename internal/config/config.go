package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the runner process.
type Config struct {
	LogLevel string
	TaskFile string

	StoreBackend string // memory | redis | postgres
	RedisAddr    string
	PostgresDSN  string

	DefaultTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	EnvFile string
	EnvMode string // per_cycle | frozen

	APIAddr     string
	MetricsAddr string

	KafkaBrokers string // empty disables report events
	KafkaTopic   string

	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		TaskFile:       v.GetString("task_file"),
		StoreBackend:   v.GetString("store_backend"),
		RedisAddr:      v.GetString("redis_addr"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		DefaultTimeout: v.GetDuration("default_timeout"),
		MaxRetries:     v.GetInt("max_retries"),
		RetryBaseDelay: v.GetDuration("retry_base_delay"),
		EnvFile:        v.GetString("env_file"),
		EnvMode:        v.GetString("env_mode"),
		APIAddr:        v.GetString("api_addr"),
		MetricsAddr:    v.GetString("metrics_addr"),
		KafkaBrokers:   v.GetString("kafka_brokers"),
		KafkaTopic:     v.GetString("kafka_topic"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
	}
}
