package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/cart"
	"gopkg.in/yaml.v3"
)

const envPrefix = "STOREFRONT_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the durable medium for the cart and the cache's
// second tier.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // memory, sqlite, redis or mongo
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type BackendConfig struct {
	Driver  string        `yaml:"driver"` // sqlite or postgres
	DSN     string        `yaml:"dsn"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests"`
}

type CacheConfig struct {
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
	ProductTTL time.Duration `yaml:"product_ttl"`
	StaleGrace time.Duration `yaml:"stale_grace"`
	Prefix     string        `yaml:"prefix"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "storefront-local.db",
			Redis:  RedisConfig{Addr: "localhost:6379", Namespace: "storefront:"},
			Mongo:  MongoConfig{URI: "mongodb://localhost:27017", Database: "storefront", Collection: "kv"},
		},
		Backend: BackendConfig{
			Driver: "sqlite",
			DSN:    "storefront.db",
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
				HalfOpenRequests:    1,
			},
		},
		Cache: CacheConfig{
			CatalogTTL: 30 * time.Minute,
			ProductTTL: 5 * time.Minute,
			StaleGrace: 10 * time.Minute,
			Prefix:     "cache:",
		},
		Kafka: KafkaConfig{Topic: "orders.placed"},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// LoadFile overlays the YAML (or JSON) document at path onto the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path when given, then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

// ApplyEnv overrides fields from STOREFRONT_* variables.
func (c *Config) ApplyEnv() error {
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("STORAGE_PATH", c.Storage.Path)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.Namespace = getEnv("REDIS_NAMESPACE", c.Storage.Redis.Namespace)
	c.Storage.Mongo.URI = getEnv("MONGO_URI", c.Storage.Mongo.URI)
	c.Storage.Mongo.Database = getEnv("MONGO_DB_NAME", c.Storage.Mongo.Database)

	c.Backend.Driver = getEnv("BACKEND_DRIVER", c.Backend.Driver)
	c.Backend.DSN = getEnv("BACKEND_DSN", c.Backend.DSN)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var errs []error
	var err error
	if c.Storage.Redis.DB, err = getEnvInt("REDIS_DB", c.Storage.Redis.DB); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.CatalogTTL, err = getEnvDuration("CACHE_CATALOG_TTL", c.Cache.CatalogTTL); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.ProductTTL, err = getEnvDuration("CACHE_PRODUCT_TTL", c.Cache.ProductTTL); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.StaleGrace, err = getEnvDuration("CACHE_STALE_GRACE", c.Cache.StaleGrace); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "redis":
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "mongo":
		if c.Storage.Mongo.URI == "" || c.Storage.Mongo.Database == "" {
			errs = append(errs, errors.New("storage.mongo.uri and storage.mongo.database are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "redis" && c.Storage.Redis.Addr == "" {
		errs = append(errs, errors.New("storage.redis.addr is required for redis"))
	}

	switch c.Backend.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown backend.driver %q", c.Backend.Driver))
	}
	if c.Backend.DSN == "" {
		errs = append(errs, errors.New("backend.dsn is required"))
	}
	if c.Backend.Breaker.ConsecutiveFailures == 0 {
		errs = append(errs, errors.New("backend.breaker.consecutive_failures must be positive"))
	}

	if c.Cache.CatalogTTL <= 0 || c.Cache.ProductTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Cache.StaleGrace < 0 {
		errs = append(errs, errors.New("cache.stale_grace must not be negative"))
	}
	switch {
	case c.Cache.Prefix == "":
		errs = append(errs, errors.New("cache.prefix is required"))
	case strings.HasPrefix(cart.StorageKey, c.Cache.Prefix):
		// clearing the cache deletes everything under the prefix
		errs = append(errs, fmt.Errorf("cache.prefix %q would cover the cart key %q", c.Cache.Prefix, cart.StorageKey))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
