package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Environment variables consulted when the matching flag is not given
const (
	HostEnvKey      = "REDIS_HOST"
	PortEnvKey      = "REDIS_PORT"
	PasswdEnvKey    = "REDIS_PASSWD"
	LimitKeyEnvKey  = "REDIS_LIMIT_KEY"
	TimeoutEnvKey   = "REDIS_TIMEOUT"
	EnvEnvKey       = "REDIS_GATEWAY_ENV"
	PollEnvKey      = "REDIS_GATEWAY_POLL_INTERVAL"
	MetricsEnvKey   = "REDIS_GATEWAY_METRICS_ADDR"
	RateLimitEnvKey = "REDIS_GATEWAY_RATE_LIMIT_RPM"
)

type Config struct {
	Env          string        `mapstructure:"env"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	MetricsAddr  string        `mapstructure:"metrics-addr"`
	RateLimitRPM int           `mapstructure:"rate-limit-rpm"`

	Redis RedisConfig `mapstructure:",squash"`
}

type RedisConfig struct {
	Host     string `mapstructure:"redis_host"`
	Port     int    `mapstructure:"redis_port"` // 0 lets the gateway pick 6379
	Password string `mapstructure:"redis_passwd"`
	LimitKey string `mapstructure:"redis_limit_key"`
	Timeout  int    `mapstructure:"redis_timeout"`
}

var envBindings = map[string]string{
	"redis_host":      HostEnvKey,
	"redis_port":      PortEnvKey,
	"redis_passwd":    PasswdEnvKey,
	"redis_limit_key": LimitKeyEnvKey,
	"redis_timeout":   TimeoutEnvKey,
	"env":             EnvEnvKey,
	"poll-interval":   PollEnvKey,
	"metrics-addr":    MetricsEnvKey,
	"rate-limit-rpm":  RateLimitEnvKey,
}

var defaults = map[string]any{
	"redis_host":      "127.0.0.1",
	"redis_port":      0,
	"redis_passwd":    "",
	"redis_limit_key": "limit",
	"redis_timeout":   30,
	"env":             "dev",
	"poll-interval":   "500ms",
	"metrics-addr":    "",
	"rate-limit-rpm":  120,
}

// RedisFlagSet returns the Redis connection flags on their own, so that
// other commands can merge them into theirs with AddFlagSet.
func RedisFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("redis", pflag.ContinueOnError)
	fs.String("redis_host", "127.0.0.1", "Redis hosting server ip. Possible to use ENV var "+HostEnvKey+".")
	fs.Int("redis_port", 0, "Redis server port, 6379 when unset. Possible to use ENV var "+PortEnvKey+".")
	fs.String("redis_passwd", "", "Redis server password. Possible to use ENV var "+PasswdEnvKey+".")
	fs.String("redis_limit_key", "limit", "Key in Redis to get. Possible to use ENV var "+LimitKeyEnvKey+".")
	fs.Int("redis_timeout", 30, "Seconds to wait for Redis to accept connections. Possible to use ENV var "+TimeoutEnvKey+".")
	return fs
}

// FlagSet returns the Redis flags plus the flags of the gateway process itself.
func FlagSet() *pflag.FlagSet {
	fs := RedisFlagSet()
	fs.String("env", "dev", "runtime environment, dev or prod")
	fs.Duration("poll-interval", 500*time.Millisecond, "delay between reads of the limit key")
	fs.String("metrics-addr", "", "address for the health/metrics HTTP server, disabled when empty")
	fs.Int("rate-limit-rpm", 120, "requests per minute allowed on the value endpoint")
	return fs
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

// Load resolves the configuration. Precedence per option: a flag set
// explicitly in fs, then its environment variable, then the built-in default.
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Redis.Host = strings.TrimSpace(cfg.Redis.Host)
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.Port < 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("%s %d out of range", PortEnvKey, c.Redis.Port)
	}
	if c.Redis.Timeout < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", TimeoutEnvKey, c.Redis.Timeout)
	}
	if c.Redis.LimitKey == "" {
		return fmt.Errorf("%s is required", LimitKeyEnvKey)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", PollEnvKey, c.PollInterval)
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", RateLimitEnvKey, c.RateLimitRPM)
	}
	switch c.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid %s %q (must be dev or prod)", EnvEnvKey, c.Env)
	}
	return nil
}
