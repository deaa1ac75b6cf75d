package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.App.ServiceName)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 3*time.Second, cfg.App.LockWaitTimeout.Std())
	assert.Equal(t, "local", cfg.App.LockMode)
	assert.NotEmpty(t, cfg.Infra.Kafka.Brokers)
}

func TestLoadFromFile(t *testing.T) {
	content := `
app:
  serviceName: storefront-test
  port: 9090
  lockWaitTimeout: 500ms
  checkoutTimeout: 2s
  lockMode: zookeeper
infra:
  mysql:
    dsn: user:pass@tcp(db:3306)/shop?parseTime=true
  kafka:
    brokers:
      - broker-1:9092
      - broker-2:9092
    topic: shop-events
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "storefront-test", cfg.App.ServiceName)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.App.LockWaitTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.App.CheckoutTimeout.Std())
	assert.Equal(t, "zookeeper", cfg.App.LockMode)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "shop-events", cfg.Infra.Kafka.Topic)
	// 文件未覆盖的项保留默认值
	assert.Equal(t, "localhost:6379", cfg.Infra.Redis.Addr)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  lockWaitTimeout: nonsense\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "env-dsn")
	t.Setenv("HTTP_PORT", "7001")
	t.Setenv("LOCK_MODE", "zookeeper")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-dsn", cfg.Infra.MySQL.DSN)
	assert.Equal(t, 7001, cfg.App.Port)
	assert.Equal(t, "zookeeper", cfg.App.LockMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
