package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  fulfillment_updated_topic_name: "order.fulfillment.updated"
redis:
  host: "localhost"
  port: 6379
fulfillsync:
  http_addr: ":8080"
  worker_http_addr: ":8082"
  kafka_consumer_group: "shop-api"
  current_status_ttl_seconds: 600
  reconcile_interval_seconds: 3600
  reconcile_concurrency: 8
  supplier_mode: "live"
  aliexpress_app_key: "k"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "order.fulfillment.updated", cfg.Kafka.FulfillmentUpdatedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.FulfillSync.HTTPAddr)
	require.Equal(t, 3600, cfg.FulfillSync.ReconcileIntervalSeconds)
	require.Equal(t, "live", cfg.FulfillSync.SupplierMode)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cfg.yaml")
	require.Error(t, err)
}
