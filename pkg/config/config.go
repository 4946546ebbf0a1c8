package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Log     LogConfig     `mapstructure:"log"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
}

// ServerConfig describes the gRPC health endpoint of a ledger process.
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MongoDBConfig configures the audit trail. An empty URI disables it.
type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type GatewayConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// LedgerConfig controls the shared order ledger of one process.
type LedgerConfig struct {
	Backend         string        `mapstructure:"backend"`
	Broadcast       string        `mapstructure:"broadcast"`
	OrdersKey       string        `mapstructure:"orders_key"`
	CounterKey      string        `mapstructure:"counter_key"`
	VersionKey      string        `mapstructure:"version_key"`
	Channel         string        `mapstructure:"channel"`
	ConflictPolicy  string        `mapstructure:"conflict_policy"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	StorageEvents   bool          `mapstructure:"storage_events"`
	Timezone        string        `mapstructure:"timezone"`
	Seed            bool          `mapstructure:"seed"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
	BackendMySQL  = "mysql"
)

// Load reads configPath (optional) on top of the defaults. Environment
// variables prefixed with CARESYNC_ override both, e.g.
// CARESYNC_LEDGER_BACKEND=redis.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CARESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "ledger")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 50061)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)

	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")
	v.SetDefault("etcd.prefix", "/caresync/")
	v.SetDefault("etcd.lease_ttl", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.username", "caresync")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "caresync")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.poll_interval", "1s")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "caresync")
	v.SetDefault("mongodb.collection", "ledger_audit")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.broadcast", BackendMemory)
	v.SetDefault("ledger.orders_key", "caresync_orders")
	v.SetDefault("ledger.counter_key", "caresync_order_counter")
	v.SetDefault("ledger.version_key", "caresync_orders_version")
	v.SetDefault("ledger.channel", "caresync_orders_sync")
	v.SetDefault("ledger.conflict_policy", "last-writer-wins")
	v.SetDefault("ledger.request_timeout", "5s")
	v.SetDefault("ledger.store_timeout", "2s")
	v.SetDefault("ledger.refresh_interval", "5s")
	v.SetDefault("ledger.storage_events", true)
	v.SetDefault("ledger.timezone", "Asia/Kolkata")
	v.SetDefault("ledger.seed", true)
}

// Validate rejects backend and policy names nothing can serve.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendMemory, BackendRedis, BackendEtcd, BackendMySQL:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Ledger.Broadcast {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown ledger broadcast %q", c.Ledger.Broadcast)
	}
	switch c.Ledger.ConflictPolicy {
	// Empty falls back to last-writer-wins, as in ledger.ParsePolicy.
	case "", "last-writer-wins", "versioned":
	default:
		return fmt.Errorf("unknown conflict policy %q", c.Ledger.ConflictPolicy)
	}
	return nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// Location resolves the ledger time zone, falling back to UTC.
func (c *LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}
