package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	ProxyFile    string `mapstructure:"PROXY_FILE"`
	WordlistFile string `mapstructure:"WORDLIST_FILE"`
	MaxSuffix    int    `mapstructure:"MAX_SUFFIX"`

	Workers             int     `mapstructure:"WORKERS"`
	ProbeTimeoutSeconds int     `mapstructure:"PROBE_TIMEOUT_SECONDS"`
	DispatchIntervalMS  int     `mapstructure:"DISPATCH_INTERVAL_MS"`
	StatsIntervalMS     int     `mapstructure:"STATS_INTERVAL_MS"`
	RunLockTTLSeconds   int     `mapstructure:"RUN_LOCK_TTL_SECONDS"`
	FailureThreshold    int     `mapstructure:"FAILURE_THRESHOLD"`
	FailureRatio        float64 `mapstructure:"FAILURE_RATIO"`
	RequireProxy        bool    `mapstructure:"REQUIRE_PROXY"`

	TargetURLTemplate     string `mapstructure:"TARGET_URL_TEMPLATE"`
	UserAgent             string `mapstructure:"USER_AGENT"`
	TrialKeywords         string `mapstructure:"TRIAL_KEYWORDS"`
	FreeKeywords          string `mapstructure:"FREE_KEYWORDS"`
	DefaultClassification string `mapstructure:"DEFAULT_CLASSIFICATION"`
}

var defaults = map[string]any{
	"SERVER_PORT":            "8080",
	"LOG_LEVEL":              "info",
	"STORE_DRIVER":           StoreSQLite,
	"POSTGRES_URL":           "",
	"SQLITE_PATH":            "prober.sqlite3",
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"PROXY_FILE":             "",
	"WORDLIST_FILE":          "",
	"MAX_SUFFIX":             99,
	"WORKERS":                10,
	"PROBE_TIMEOUT_SECONDS":  15,
	"DISPATCH_INTERVAL_MS":   100,
	"STATS_INTERVAL_MS":      1000,
	"RUN_LOCK_TTL_SECONDS":   60,
	"FAILURE_THRESHOLD":      10,
	"FAILURE_RATIO":          0.8,
	"REQUIRE_PROXY":          false,
	"TARGET_URL_TEMPLATE":    "https://example.com/{candidate}",
	"USER_AGENT":             "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"TRIAL_KEYWORDS":         "free trial",
	"FREE_KEYWORDS":          "free",
	"DEFAULT_CLASSIFICATION": "paid",
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; production is configured through the environment.
	_ = v.ReadInConfig()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return fmt.Errorf("FAILURE_RATIO must be in (0,1], got %v", c.FailureRatio)
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("FAILURE_THRESHOLD must not be negative, got %d", c.FailureThreshold)
	}
	if !strings.Contains(c.TargetURLTemplate, "{candidate}") {
		return fmt.Errorf("TARGET_URL_TEMPLATE must contain {candidate}")
	}
	return nil
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMS) * time.Millisecond
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

func (c *Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSeconds) * time.Second
}

// Keywords splits a comma separated keyword setting, lower-cased.
func Keywords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
