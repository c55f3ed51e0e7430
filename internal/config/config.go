package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Weather WeatherConfig `yaml:"weather" mapstructure:"weather"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Accrual AccrualConfig `yaml:"accrual" mapstructure:"accrual"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// LogRateLimit caps location logs per client IP per minute.
	LogRateLimit        int `yaml:"log_rate_limit" mapstructure:"log_rate_limit"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// WeatherConfig configures the OpenWeatherMap client.
type WeatherConfig struct {
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	Retry        RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
}

// AccrualConfig configures the location log.
type AccrualConfig struct {
	StationRadiusMeters float64 `yaml:"station_radius_meters" mapstructure:"station_radius_meters"`
	MissCooldownMins    int     `yaml:"miss_cooldown_mins" mapstructure:"miss_cooldown_mins"`
	// StationsFile replaces the built-in station list when set.
	StationsFile  string `yaml:"stations_file" mapstructure:"stations_file"`
	TxTimeoutSecs int    `yaml:"tx_timeout_secs" mapstructure:"tx_timeout_secs"`
}

// MissCooldown returns the cooldown as a duration.
func (c AccrualConfig) MissCooldown() time.Duration {
	return time.Duration(c.MissCooldownMins) * time.Minute
}

// TxTimeout returns the transaction timeout as a duration.
func (c AccrualConfig) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSecs) * time.Second
}

// Validate checks the settings a command mode needs. Modes: "serve",
// "migrate" and "token".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Weather.APIKey == "" {
			errs = append(errs, "weather.api_key is required")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
		if c.Accrual.StationRadiusMeters <= 0 {
			errs = append(errs, "accrual.station_radius_meters must be > 0")
		}
		if c.Accrual.MissCooldownMins < 0 {
			errs = append(errs, "accrual.miss_cooldown_mins must be >= 0")
		}
	case "token":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
	case "migrate":
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOLALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can bind it on Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "solalog.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_rate_limit", 60)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "https://api.openweathermap.org")
	v.SetDefault("weather.timeout_secs", 5)
	v.SetDefault("weather.rate_limit_rps", 10)
	v.SetDefault("weather.retry.max_attempts", 2)
	v.SetDefault("weather.retry.initial_backoff_ms", 200)
	v.SetDefault("weather.retry.max_backoff_ms", 2000)
	v.SetDefault("weather.breaker.failure_threshold", 5)
	v.SetDefault("weather.breaker.reset_timeout_secs", 30)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 24*30)
	v.SetDefault("accrual.station_radius_meters", 70)
	v.SetDefault("accrual.miss_cooldown_mins", 30)
	v.SetDefault("accrual.stations_file", "")
	v.SetDefault("accrual.tx_timeout_secs", 15)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
