package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retrieval service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Index     IndexConfig     `yaml:"index"`
	Pool      PoolConfig      `yaml:"pool"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Audit     AuditConfig     `yaml:"audit"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig holds vector index backend settings.
type IndexConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// PoolConfig holds index connection pool settings.
type PoolConfig struct {
	MinConns             int `yaml:"min_conns"`
	MaxConns             int `yaml:"max_conns"`
	AcquireTimeoutMs     int `yaml:"acquire_timeout_ms"`
	HealthCheckTimeoutMs int `yaml:"health_check_timeout_ms"`
	SearchTimeoutMs      int `yaml:"search_timeout_ms"`
}

// RetryConfig holds search retry settings.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSec      int `yaml:"cooldown_sec"`
}

// RetrievalConfig holds pipeline scoring and fan-out settings.
type RetrievalConfig struct {
	SemanticWeight  float64 `yaml:"semantic_weight"`
	LexicalWeight   float64 `yaml:"lexical_weight"`
	TopKPerVariant  int     `yaml:"top_k_per_variant"`
	FanOutLimit     int     `yaml:"fan_out_limit"`
	QueryTimeoutSec int     `yaml:"query_timeout_sec"`
}

// ExpansionConfig holds query expansion settings.
type ExpansionConfig struct {
	Strategy    string `yaml:"strategy"` // none, synonyms, templates
	MaxVariants int    `yaml:"max_variants"`
}

// RerankConfig holds cross-encoder reranker settings.
type RerankConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	TopK       int    `yaml:"top_k"`
	FinalK     int    `yaml:"final_k"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// AuditConfig holds failure audit sink settings.
type AuditConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

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
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Port <= 0 {
		c.Index.Port = 6334
	}
	if c.Pool.MinConns <= 0 {
		c.Pool.MinConns = 5
	}
	if c.Pool.MaxConns <= 0 {
		c.Pool.MaxConns = 10
	}
	if c.Pool.AcquireTimeoutMs <= 0 {
		c.Pool.AcquireTimeoutMs = 2000
	}
	if c.Pool.HealthCheckTimeoutMs <= 0 {
		c.Pool.HealthCheckTimeoutMs = 500
	}
	if c.Pool.SearchTimeoutMs <= 0 {
		c.Pool.SearchTimeoutMs = 3000
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = 500
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 8000
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 10
	}
	if c.Breaker.CooldownSec <= 0 {
		c.Breaker.CooldownSec = 30
	}
	if c.Retrieval.SemanticWeight == 0 && c.Retrieval.LexicalWeight == 0 {
		c.Retrieval.SemanticWeight = 0.7
		c.Retrieval.LexicalWeight = 0.3
	}
	if c.Retrieval.TopKPerVariant <= 0 {
		c.Retrieval.TopKPerVariant = 50
	}
	if c.Retrieval.FanOutLimit <= 0 {
		c.Retrieval.FanOutLimit = 4
	}
	if c.Retrieval.QueryTimeoutSec <= 0 {
		c.Retrieval.QueryTimeoutSec = 10
	}
	if c.Expansion.Strategy == "" {
		c.Expansion.Strategy = "synonyms"
	}
	if c.Expansion.MaxVariants <= 0 {
		c.Expansion.MaxVariants = 3
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 5
	}
	if c.Rerank.TopK <= 0 {
		c.Rerank.TopK = 50
	}
	if c.Rerank.FinalK <= 0 {
		c.Rerank.FinalK = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = 256
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Index.Host == "" {
		return fmt.Errorf("index.host is required")
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index.collection is required")
	}
	if c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("pool.min_conns (%d) must not exceed pool.max_conns (%d)", c.Pool.MinConns, c.Pool.MaxConns)
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.LexicalWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	switch c.Expansion.Strategy {
	case "none", "synonyms", "templates":
		// ok
	default:
		return fmt.Errorf("expansion.strategy must be \"none\", \"synonyms\" or \"templates\", got %q", c.Expansion.Strategy)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
