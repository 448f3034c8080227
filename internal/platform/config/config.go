package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "rlregistry/pkg/platform/strings"
)

// Store backends selectable through RL_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	Store           string
	JWTSigningKey   string
	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Snapshot SnapshotConfig
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds connection settings for the redis-backed list store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit event stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// SnapshotConfig enables object storage snapshots of the in-memory store when
// Endpoint is non-empty.
type SnapshotConfig struct {
	Endpoint  string
	Bucket    string
	Object    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Interval  time.Duration
}

func (s SnapshotConfig) Enabled() bool {
	return s.Endpoint != ""
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getEnv("RL_ADDR", ":8080"),
		LogLevel:      getEnv("RL_LOG_LEVEL", "info"),
		LogFormat:     getEnv("RL_LOG_FORMAT", "json"),
		Store:         strings.ToLower(getEnv("RL_STORE", StoreMemory)),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:   getEnv("KAFKA_TOPIC", "revocation-list-events"),
		},
		Snapshot: SnapshotConfig{
			Endpoint:  os.Getenv("SNAPSHOT_ENDPOINT"),
			Bucket:    getEnv("SNAPSHOT_BUCKET", "revocation-lists"),
			Object:    getEnv("SNAPSHOT_OBJECT", "registry.rls"),
			AccessKey: os.Getenv("SNAPSHOT_ACCESS_KEY"),
			SecretKey: os.Getenv("SNAPSHOT_SECRET_KEY"),
		},
	}

	var err error
	if cfg.ShutdownTimeout, err = getDuration("RL_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxOpenConns, err = getInt("DATABASE_MAX_OPEN_CONNS", 10); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxIdleConns, err = getInt("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Snapshot.Interval, err = getDuration("SNAPSHOT_INTERVAL", time.Minute); err != nil {
		return Server{}, err
	}
	cfg.Snapshot.UseSSL = os.Getenv("SNAPSHOT_USE_SSL") == "true"

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (s Server) Validate() error {
	switch s.Store {
	case StoreMemory:
	case StorePostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("RL_STORE=postgres requires DATABASE_URL")
		}
	case StoreRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("RL_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown RL_STORE %q (want memory, postgres or redis)", s.Store)
	}
	if s.Snapshot.Enabled() && s.Store != StoreMemory {
		return fmt.Errorf("snapshots are only supported with RL_STORE=memory")
	}
	if s.Snapshot.Enabled() && s.Snapshot.Interval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
