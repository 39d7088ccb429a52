package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Tokens    TokenConfig     `mapstructure:"tokens"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Csrf      CsrfConfig      `mapstructure:"csrf"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	APIKey        string `mapstructure:"api_key"`
	AdminKey      string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	WindowPrefix string `mapstructure:"window_prefix"`
}

type TokenConfig struct {
	// Redemption link lifetime. Zero disables expiry.
	ExpiryHours int `mapstructure:"expiry_hours"`
}

// RateRule defines one sliding-window rule for an action.
type RateRule struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type RateLimitConfig struct {
	Login    RateRule `mapstructure:"login"`
	Register RateRule `mapstructure:"register"`
	Redeem   RateRule `mapstructure:"redeem"`

	// Token-bucket throttle for the authenticated API group.
	SessionQPS   float64 `mapstructure:"session_qps"`
	SessionBurst int     `mapstructure:"session_burst"`
}

type CsrfConfig struct {
	CookieName  string   `mapstructure:"cookie_name"`
	ExemptPaths []string `mapstructure:"exempt_paths"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func (r RateRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. SERVEGATE_DATABASE_DSN
	viper.SetEnvPrefix("servegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("auth.require_api_key", true)
	viper.SetDefault("tokens.expiry_hours", 72)
	viper.SetDefault("rate_limit.login.limit", 10)
	viper.SetDefault("rate_limit.login.window_seconds", 60)
	viper.SetDefault("rate_limit.register.limit", 10)
	viper.SetDefault("rate_limit.register.window_seconds", 60)
	viper.SetDefault("rate_limit.redeem.limit", 30)
	viper.SetDefault("rate_limit.redeem.window_seconds", 60)
	viper.SetDefault("rate_limit.session_qps", 10)
	viper.SetDefault("rate_limit.session_burst", 20)
	viper.SetDefault("csrf.cookie_name", "csrf_token")
	viper.SetDefault("csrf.exempt_paths", []string{})
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("redis.window_prefix", "ratewin")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
