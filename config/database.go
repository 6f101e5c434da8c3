package config

import (
	"fmt"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"inference"`
	Password string `env:"PASSWORD"                envDefault:"inference"`
	Name     string `env:"NAME"                    envDefault:"inference"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheBackend selects the result cache implementation.
type CacheBackend string

const (
	// CacheBackendMemory keeps results in process memory.
	CacheBackendMemory CacheBackend = "memory"
	// CacheBackendRedis keeps results in Redis with native TTLs.
	CacheBackendRedis CacheBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for CacheBackend.
func (b *CacheBackend) UnmarshalText(text []byte) error {
	v := CacheBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case CacheBackendMemory, CacheBackendRedis:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid CacheBackend: %q (valid options: memory, redis)", v)
	}
}

// CacheConfig contains result cache configuration.
type CacheConfig struct {
	Backend CacheBackend `env:"BACKEND" envDefault:"memory"`

	// TTL is how long a computed result is served from cache.
	TTL time.Duration `env:"TTL" envDefault:"10m"`

	// SweepInterval is how often expired in-memory entries are removed.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// Shards is the number of independently locked in-memory shards.
	Shards int `env:"SHARDS" envDefault:"32"`

	// KeyPrefix namespaces cached results in Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"inference:result:"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.Backend == "" {
		c.Backend = CacheBackendMemory
	}
	if c.TTL < time.Second {
		c.TTL = time.Second
	}
	if c.SweepInterval < time.Second {
		c.SweepInterval = time.Second
	}
	if c.Shards < 1 {
		c.Shards = 1
	}
	if c.Shards > 1024 {
		c.Shards = 1024
	}
}
