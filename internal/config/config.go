package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog drivers.
const (
	CatalogRedis    = "redis"
	CatalogPostgres = "postgres"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds the prodmatch configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Redis     RedisConfig     `yaml:"redis"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matching  MatchingConfig  `yaml:"matching"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RedisConfig holds Redis connection settings.
// Addrs may be empty when the catalog lives in Postgres and the shared cache is disabled.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CatalogConfig selects where product vectors and canonical records live.
type CatalogConfig struct {
	Driver      string `yaml:"driver"` // redis, postgres (default: redis)
	PostgresDSN string `yaml:"postgres_dsn"`
	KeyPrefix   string `yaml:"key_prefix"`
	IndexName   string `yaml:"index_name"`
	HNSWM       int    `yaml:"hnsw_m"`
	HNSWEF      int    `yaml:"hnsw_ef_construction"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	LocalSize int               `yaml:"local_size"`
	Shared    SharedCacheConfig `yaml:"shared"`
}

// SharedCacheConfig holds settings of the Redis-backed second tier.
type SharedCacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TTLHours int    `yaml:"ttl_hours"`
	Prefix   string `yaml:"prefix"`
	// Breaker opens after this many consecutive failures.
	BreakerFailures int `yaml:"breaker_failures"`
	BreakerOpenSec  int `yaml:"breaker_open_sec"`
}

// TTL returns the shared cache entry lifetime.
func (c SharedCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai, gemini (default: openai)
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	MaxRetries        int     `yaml:"max_retries"`
}

// MatchingConfig holds pipeline settings.
type MatchingConfig struct {
	BatchSize int `yaml:"batch_size"`
	MaxItems  int `yaml:"max_items"`
	TopK      int `yaml:"top_k"`
	Workers   int `yaml:"workers"`
}

// MonitorConfig holds the periodic cache stats job settings.
type MonitorConfig struct {
	Schedule string `yaml:"schedule"` // cron spec or "off" (default: every 5 minutes)
}

// MonitorOff disables the periodic monitor.
const MonitorOff = "off"

// Enabled reports whether the monitor job should be scheduled.
func (c MonitorConfig) Enabled() bool {
	return c.Schedule != "" && c.Schedule != MonitorOff
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = CatalogRedis
	}
	if c.Catalog.KeyPrefix == "" {
		c.Catalog.KeyPrefix = "prodmatch:"
	}
	if c.Catalog.IndexName == "" {
		c.Catalog.IndexName = c.Catalog.KeyPrefix + "products:idx"
	}
	if c.Catalog.HNSWM <= 0 {
		c.Catalog.HNSWM = 16
	}
	if c.Catalog.HNSWEF <= 0 {
		c.Catalog.HNSWEF = 200
	}
	if c.Cache.LocalSize <= 0 {
		c.Cache.LocalSize = 1000
	}
	if c.Cache.Shared.TTLHours <= 0 {
		c.Cache.Shared.TTLHours = 30 * 24
	}
	if c.Cache.Shared.Prefix == "" {
		c.Cache.Shared.Prefix = c.Catalog.KeyPrefix + "emb:"
	}
	if c.Cache.Shared.BreakerFailures <= 0 {
		c.Cache.Shared.BreakerFailures = 5
	}
	if c.Cache.Shared.BreakerOpenSec <= 0 {
		c.Cache.Shared.BreakerOpenSec = 30
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.Model == "" {
		if c.Embedding.Provider == ProviderGemini {
			c.Embedding.Model = "text-embedding-004"
		} else {
			c.Embedding.Model = "text-embedding-3-small"
		}
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxRetries < 0 {
		c.Embedding.MaxRetries = 0
	}
	if c.Matching.BatchSize <= 0 {
		c.Matching.BatchSize = 10
	}
	if c.Matching.MaxItems <= 0 {
		c.Matching.MaxItems = 20
	}
	if c.Matching.TopK <= 0 {
		c.Matching.TopK = 20
	}
	if c.Matching.Workers <= 0 {
		c.Matching.Workers = 4 * c.Matching.BatchSize
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "*/5 * * * *"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Catalog.Driver {
	case CatalogRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for catalog driver %q", c.Catalog.Driver)
		}
	case CatalogPostgres:
		if c.Catalog.PostgresDSN == "" {
			return fmt.Errorf("catalog.postgres_dsn is required for catalog driver %q", c.Catalog.Driver)
		}
	default:
		return fmt.Errorf("catalog.driver must be %q or %q, got %q",
			CatalogRedis, CatalogPostgres, c.Catalog.Driver)
	}
	if c.Cache.Shared.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required when cache.shared.enabled is set")
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini:
		// ok
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderGemini, c.Embedding.Provider)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative")
	}
	return nil
}

// NeedsRedis reports whether startup must fail without Redis.
// A Redis used only by the shared cache is optional.
func (c *Config) NeedsRedis() bool {
	return c.Catalog.Driver == CatalogRedis
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
