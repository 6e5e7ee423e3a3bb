package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Ledger.Driver)
	assert.Equal(t, "file", cfg.Sequence.Locker)
	assert.Equal(t, 5*time.Second, cfg.Sequence.LockTimeout)
	assert.Nil(t, cfg.KafkaBrokers())
	assert.Equal(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9090
sequence:
  path: /var/lib/order-hub/order-id
  lockTimeout: 2s
ledger:
  driver: mysql
  seed:
    7: 10
    9: 0
catalogue:
  products:
    - id: 7
      name: Desk lamp
      price: "12.50"
infra:
  mysql:
    addr: db:3306
    user: shop
    password: secret
    dbName: storefront
  kafka:
    brokers: "k1:9092, k2:9092"
`), 0o644))

	t.Setenv("ORDERHUB_LOCK_TIMEOUT", "750ms")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "/var/lib/order-hub/order-id", cfg.Sequence.Path)
	assert.Equal(t, 750*time.Millisecond, cfg.Sequence.LockTimeout)
	assert.Equal(t, map[int64]int{7: 10, 9: 0}, cfg.Ledger.Seed)
	require.Len(t, cfg.Catalogue.Products, 1)
	assert.Equal(t, "12.50", cfg.Catalogue.Products[0].Price)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, "cache:6379", cfg.Infra.Redis.Addrs)

	dsn, err := mysql.ParseDSN(cfg.MySQLDSN())
	require.NoError(t, err)
	assert.Equal(t, "db:3306", dsn.Addr)
	assert.Equal(t, "shop", dsn.User)
	assert.Equal(t, "storefront", dsn.DBName)
	assert.True(t, dsn.ParseTime)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown ledger", func(c *Config) { c.Ledger.Driver = "etcd" }},
		{"mysql ledger without dsn", func(c *Config) { c.Ledger.Driver = "mysql" }},
		{"redis ledger without addrs", func(c *Config) { c.Ledger.Driver = "redis" }},
		{"zookeeper locker without servers", func(c *Config) { c.Sequence.Locker = "zookeeper" }},
		{"empty sequence path", func(c *Config) { c.Sequence.Path = "" }},
		{"zero lock timeout", func(c *Config) { c.Sequence.LockTimeout = 0 }},
		{"zero queue", func(c *Config) { c.Hub.QueueSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfig_RejectsBadEnv(t *testing.T) {
	t.Setenv("ORDERHUB_PORT", "eighty")
	_, err := LoadConfig("")
	assert.Error(t, err)
}
