package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RL_STORE", "")
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("SNAPSHOT_ENDPOINT", "")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, StoreMemory, cfg.Store)
		assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
		assert.False(t, cfg.Kafka.Enabled())
		assert.False(t, cfg.Snapshot.Enabled())
	})

	t.Run("brokers are split and trimmed", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
		t.Setenv("KAFKA_TOPIC", "rl")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "rl", cfg.Kafka.Topic)
		assert.True(t, cfg.Kafka.Enabled())
	})

	t.Run("postgres requires a database url", func(t *testing.T) {
		t.Setenv("RL_STORE", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("redis store picks up pool settings", func(t *testing.T) {
		t.Setenv("RL_STORE", "Redis")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("REDIS_POOL_SIZE", "32")
		t.Setenv("REDIS_READ_TIMEOUT", "750ms")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, StoreRedis, cfg.Store)
		assert.Equal(t, 32, cfg.Redis.PoolSize)
		assert.Equal(t, 750*time.Millisecond, cfg.Redis.ReadTimeout)
	})

	t.Run("malformed duration is rejected", func(t *testing.T) {
		t.Setenv("RL_SHUTDOWN_TIMEOUT", "soon")

		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unknown store is rejected", func(t *testing.T) {
		t.Setenv("RL_STORE", "etcd")

		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("snapshots need the memory store", func(t *testing.T) {
		t.Setenv("RL_STORE", "redis")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("SNAPSHOT_ENDPOINT", "localhost:9000")

		_, err := FromEnv()
		require.Error(t, err)
	})
}
