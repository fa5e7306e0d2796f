package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	FulfillSync FulfillSyncConfig `yaml:"fulfillsync"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	FulfillmentUpdatedTopicName string `yaml:"fulfillment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type FulfillSyncConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Reconciliation cadence. Hourly unless overridden.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	ReconcilePageSize        int `yaml:"reconcile_page_size"`
	ReconcileConcurrency     int `yaml:"reconcile_concurrency"`

	RateLimitPerMinute           int `yaml:"rate_limit_per_minute"`
	RateLimitAliExpressPerMinute int `yaml:"rate_limit_aliexpress_per_minute"`
	RateLimitCJPerMinute         int `yaml:"rate_limit_cj_per_minute"`

	AliExpressBaseURL string `yaml:"aliexpress_base_url"`
	AliExpressAppKey  string `yaml:"aliexpress_app_key"`
	CJBaseURL         string `yaml:"cj_base_url"`
	CJAccessToken     string `yaml:"cj_access_token"`

	// "live" wires the real supplier adapters; anything else falls back to
	// the local fake (dev/demo).
	SupplierMode string `yaml:"supplier_mode"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
