package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Ingest         IngestConfig
	Dedup          DedupConfig
	Routing        RoutingConfig
	Delivery       DeliveryConfig
	Gateway        GatewayConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Redis       RedisConfig
	MongoDB     MongoDBConfig
	EnsureIndex bool `mapstructure:"ensure_index"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers        []string    `mapstructure:"brokers"`
	GroupID        string      `mapstructure:"group_id"`
	ProcessTopic   string      `mapstructure:"process_topic"`
	RouteTopic     string      `mapstructure:"route_topic"`
	ReprocessTopic string      `mapstructure:"reprocess_topic"`
	DLQTopic       string      `mapstructure:"dlq_topic"`
	Retry          RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IngestConfig governs the processing pipeline worker.
type IngestConfig struct {
	// PayloadRetentionDays controls how long original payloads are kept on
	// leads before the cleanup ticker strips them. 0 disables cleanup.
	PayloadRetentionDays int `mapstructure:"payload_retention_days"`
}

// DedupConfig governs the redis fast-path in front of the authoritative
// store query. Per-source dedupe settings (fields, operator, window) live
// on the source itself.
type DedupConfig struct {
	HashAlgorithm string `mapstructure:"hash_algorithm"`
	OnRedisError  string `mapstructure:"on_redis_error"`
}

type RoutingConfig struct {
	// MaxTargetsPerLead bounds fan-out per routing pass. 0 = unlimited.
	MaxTargetsPerLead int `mapstructure:"max_targets_per_lead"`
}

type DeliveryConfig struct {
	// DefaultTimeoutSeconds applies when an endpoint declares no timeout.
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`
}

type GatewayConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
