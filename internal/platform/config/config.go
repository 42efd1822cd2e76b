// Package config loads service configuration from the environment, optionally
// layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// ConfigFileEnv names the optional YAML file read before the environment.
const ConfigFileEnv = "RECONCILER_CONFIG"

// Config is the full service configuration.
type Config struct {
	Addr      string          `yaml:"addr"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects and tunes the contact store.
type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	DatabaseURL  string        `yaml:"database_url"`
	Driver       string        `yaml:"driver"`
	SQLitePath   string        `yaml:"sqlite_path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
}

// RedisConfig configures the view cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ViewTTL      time.Duration `yaml:"view_ttl"`
}

// KafkaConfig configures identity event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ReconcileConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// Default returns the configuration used when nothing is set: an in-memory
// store on :8080 with cache and events disabled.
func Default() Config {
	return Config{
		Addr: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:      BackendMemory,
			SQLitePath:   "reconciler.db",
			MaxOpenConns: 25,
			TxTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			ViewTTL:      5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "identity.events",
		},
		Reconcile: ReconcileConfig{
			MaxAttempts: 5,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// RECONCILER_CONFIG when set, and finally the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "RECONCILER_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.DatabaseURL, "DATABASE_URL")
	setString(&c.Store.Driver, "DATABASE_DRIVER")
	setString(&c.Store.SQLitePath, "SQLITE_PATH")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&c.Store.TxTimeout, "TX_TIMEOUT"),
		setDuration(&c.Redis.ViewTTL, "VIEW_CACHE_TTL"),
		setInt(&c.Reconcile.MaxAttempts, "LOCK_MAX_ATTEMPTS"),
		setInt(&c.Store.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS"),
	)
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
		switch c.Store.Driver {
		case "", "postgres", "pgx":
		default:
			errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Store.Driver))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format))
	}
	if c.Store.TxTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT must be positive"))
	}
	if c.Reconcile.MaxAttempts < 1 {
		errs = append(errs, errors.New("LOCK_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Redis.URL != "" && c.Redis.ViewTTL <= 0 {
		errs = append(errs, errors.New("VIEW_CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
