package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// SyncConfig holds the synchronization engine settings: upstream rate
// budgets and the scan tunables of one pass.
type SyncConfig struct {
	// Rate budgets per store, one per nested window
	RateBudgetSecond int64
	RateBudgetMinute int64
	RateBudgetHour   int64
	RateBudgetDay    int64
	// MinRequestSpacing smooths bursts below the per-second budget
	MinRequestSpacing time.Duration
	// FailOpenDelay is the conservative wait when the counter store is down
	FailOpenDelay time.Duration

	// PageSize is the upstream page size requested per fetch
	PageSize int
	// MaxEmptyPages ends the forward scan after this many consecutive
	// empty pages
	MaxEmptyPages int
	// ForwardHorizonPages caps the pages fetched by one forward scan
	ForwardHorizonPages int
	// BackwardWindowPages is the status-change re-scan window
	BackwardWindowPages int
	// MaxMalformedPages bounds skipped undecodable pages per pass
	MaxMalformedPages int
	// FetchRetries bounds per-page retries on transient errors
	FetchRetries int
	// RetryBaseDelay is the first backoff step, doubled per attempt
	RetryBaseDelay time.Duration
	// PositionStaleHorizon is the age past which a cached position is
	// re-derived through recovery
	PositionStaleHorizon time.Duration
	// StateDir is where the on-disk position fallback files live
	StateDir string
}

// SchedulerConfig holds the sync cycle scheduler settings
type SchedulerConfig struct {
	Enabled       bool
	CycleInterval time.Duration
	StoreCooldown time.Duration
	PassTimeout   time.Duration
	MaxHistory    int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BACKOFFICE_ prefix (e.g., BACKOFFICE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Sync: SyncConfig{
			RateBudgetSecond:     v.GetInt64("sync.rate_budget_second"),
			RateBudgetMinute:     v.GetInt64("sync.rate_budget_minute"),
			RateBudgetHour:       v.GetInt64("sync.rate_budget_hour"),
			RateBudgetDay:        v.GetInt64("sync.rate_budget_day"),
			MinRequestSpacing:    v.GetDuration("sync.min_request_spacing"),
			FailOpenDelay:        v.GetDuration("sync.fail_open_delay"),
			PageSize:             v.GetInt("sync.page_size"),
			MaxEmptyPages:        v.GetInt("sync.max_empty_pages"),
			ForwardHorizonPages:  v.GetInt("sync.forward_horizon_pages"),
			BackwardWindowPages:  v.GetInt("sync.backward_window_pages"),
			MaxMalformedPages:    v.GetInt("sync.max_malformed_pages"),
			FetchRetries:         v.GetInt("sync.fetch_retries"),
			RetryBaseDelay:       v.GetDuration("sync.retry_base_delay"),
			PositionStaleHorizon: v.GetDuration("sync.position_stale_horizon"),
			StateDir:             v.GetString("sync.state_dir"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			CycleInterval: v.GetDuration("scheduler.cycle_interval"),
			StoreCooldown: v.GetDuration("scheduler.store_cooldown"),
			PassTimeout:   v.GetDuration("scheduler.pass_timeout"),
			MaxHistory:    v.GetInt("scheduler.max_history"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "backoffice-syncd"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "backoffice"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	// Rate budgets stay deliberately below the upstream's stated limits
	if cfg.Sync.RateBudgetSecond == 0 {
		cfg.Sync.RateBudgetSecond = 4
	}
	if cfg.Sync.RateBudgetMinute == 0 {
		cfg.Sync.RateBudgetMinute = 40
	}
	if cfg.Sync.RateBudgetHour == 0 {
		cfg.Sync.RateBudgetHour = 800
	}
	if cfg.Sync.RateBudgetDay == 0 {
		cfg.Sync.RateBudgetDay = 8000
	}
	if cfg.Sync.MinRequestSpacing == 0 {
		cfg.Sync.MinRequestSpacing = 250 * time.Millisecond
	}
	if cfg.Sync.FailOpenDelay == 0 {
		cfg.Sync.FailOpenDelay = 2 * time.Second
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 20
	}
	if cfg.Sync.MaxEmptyPages == 0 {
		cfg.Sync.MaxEmptyPages = 3
	}
	if cfg.Sync.ForwardHorizonPages == 0 {
		cfg.Sync.ForwardHorizonPages = 200
	}
	if cfg.Sync.BackwardWindowPages == 0 {
		cfg.Sync.BackwardWindowPages = 10
	}
	if cfg.Sync.MaxMalformedPages == 0 {
		cfg.Sync.MaxMalformedPages = 3
	}
	if cfg.Sync.FetchRetries == 0 {
		cfg.Sync.FetchRetries = 3
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = time.Second
	}
	if cfg.Sync.PositionStaleHorizon == 0 {
		cfg.Sync.PositionStaleHorizon = 72 * time.Hour
	}
	if cfg.Sync.StateDir == "" {
		cfg.Sync.StateDir = "./state"
	}
	if cfg.Scheduler.CycleInterval == 0 {
		cfg.Scheduler.CycleInterval = 5 * time.Minute
	}
	if cfg.Scheduler.StoreCooldown == 0 {
		cfg.Scheduler.StoreCooldown = 10 * time.Second
	}
	if cfg.Scheduler.PassTimeout == 0 {
		cfg.Scheduler.PassTimeout = 15 * time.Minute
	}
	if cfg.Scheduler.MaxHistory == 0 {
		cfg.Scheduler.MaxHistory = 100
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// Rate budgets must be positive and nested: a tighter window can never
	// allow more requests than a wider one
	s := &c.Sync
	if s.RateBudgetSecond <= 0 || s.RateBudgetMinute <= 0 || s.RateBudgetHour <= 0 || s.RateBudgetDay <= 0 {
		return fmt.Errorf("sync rate budgets must be positive")
	}
	if s.RateBudgetSecond > s.RateBudgetMinute ||
		s.RateBudgetMinute > s.RateBudgetHour ||
		s.RateBudgetHour > s.RateBudgetDay {
		return fmt.Errorf("sync rate budgets must not decrease from second to day (%d/%d/%d/%d)",
			s.RateBudgetSecond, s.RateBudgetMinute, s.RateBudgetHour, s.RateBudgetDay)
	}
	if s.MinRequestSpacing < 0 || s.FailOpenDelay <= 0 {
		return fmt.Errorf("sync.min_request_spacing cannot be negative and sync.fail_open_delay must be positive")
	}
	if s.PageSize <= 0 || s.PageSize > 50 {
		return fmt.Errorf("sync.page_size must be between 1 and 50, got %d", s.PageSize)
	}
	if s.MaxEmptyPages <= 0 || s.ForwardHorizonPages <= 0 {
		return fmt.Errorf("sync scan windows must be positive")
	}
	if s.BackwardWindowPages < 0 || s.MaxMalformedPages < 0 || s.FetchRetries < 0 {
		return fmt.Errorf("sync scan bounds cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
