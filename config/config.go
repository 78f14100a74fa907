package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
	Audit     AuditConfig     `yaml:"audit"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	Mode            string  `yaml:"mode"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	ShutdownSeconds int     `yaml:"shutdown_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
}

// ExecutionConfig holds the policies of the execution core.
type ExecutionConfig struct {
	OverProduction OverProductionConfig `yaml:"over_production"`

	// ReverseResultsOnCancel reverses every live result when an order is cancelled.
	ReverseResultsOnCancel bool          `yaml:"reverse_results_on_cancel"`
	PersistTimeoutMillis   int           `yaml:"persist_timeout_millis"`
	PersistTimeout         time.Duration `yaml:"-"`
	LockMaxRetry           int           `yaml:"lock_max_retry"`
}

// OverProductionConfig is the over-production tolerance policy.
type OverProductionConfig struct {
	Mode             string  `yaml:"mode"` // reject or warn
	ToleranceQty     float64 `yaml:"tolerance_qty"`
	TolerancePercent float64 `yaml:"tolerance_percent"`
}

// AuditConfig holds the configuration for the audit worker pool.
type AuditConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size"`
	QueueSize      int `yaml:"queue_size"`
}

// RedisConfig holds the domain event publisher connection. An empty address
// publishes domain events to the log only.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// AuthConfig holds the identity extraction configuration. Without a JWT secret
// the tenant and user are read from X-Tenant-ID and X-User-ID.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MonitorConfig holds the open downtime monitor configuration.
type MonitorConfig struct {
	Enabled             bool          `yaml:"enabled"`
	IntervalSeconds     int           `yaml:"interval_seconds"`
	Interval            time.Duration `yaml:"-"`
	LongStoppageMinutes int           `yaml:"long_stoppage_minutes"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path. A .env file next to the
// working directory is loaded first, and MES_* variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied, for tests and
// for running without a file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MES_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MES_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MES_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("MES_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MES_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("MES_SERVER_PORT %q is not a number; keeping %d", v, cfg.Server.Port)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Execution.OverProduction.Mode == "" {
		cfg.Execution.OverProduction.Mode = "reject"
	}
	if cfg.Execution.PersistTimeoutMillis <= 0 {
		cfg.Execution.PersistTimeoutMillis = 3000
	}
	cfg.Execution.PersistTimeout = time.Duration(cfg.Execution.PersistTimeoutMillis) * time.Millisecond

	if cfg.Audit.WorkerPoolSize <= 0 {
		log.Printf("audit.worker_pool_size is not set or invalid; defaulting to 1")
		cfg.Audit.WorkerPoolSize = 1
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1024
	}

	if cfg.Redis.ChannelPrefix == "" {
		cfg.Redis.ChannelPrefix = "mes:events"
	}

	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 60
	}
	cfg.Monitor.Interval = time.Duration(cfg.Monitor.IntervalSeconds) * time.Second
	if cfg.Monitor.LongStoppageMinutes <= 0 {
		cfg.Monitor.LongStoppageMinutes = 120
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
