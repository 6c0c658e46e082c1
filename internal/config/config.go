package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	// Config represents an application configuration.
	// Both binaries read the same structure and ignore what they don't use.
	Config struct {
		// The data source name (DSN) for connecting to the database.
		DSN string `yaml:"dsn" env:"DATABASE_URL"`
		// Base URL of the identity (user) service.
		IdentityAddr string `yaml:"identity_addr" env:"USER_SERVICE_URL" env-default:"http://localhost:3001"`
		// Base URL of the order service.
		OrdersAddr string `yaml:"orders_addr" env:"ORDER_SERVICE_URL" env-default:"http://localhost:3002"`
		// Subconfigs.
		HTTPServer HTTPServer `yaml:"http_server"`
		JWT        JWT        `yaml:"jwt"`
		Logger     Logger     `yaml:"logger"`
		RateLimit  RateLimit  `yaml:"rate_limit"`
		Upstream   Upstream   `yaml:"upstream"`
		DB         DB         `yaml:"db"`
	}
	// Config for HTTP server.
	HTTPServer struct {
		// The server startup address.
		Address string `yaml:"run_address" env:"RUN_ADDRESS"`
		// Read Header Timeout in seconds.
		Timeout time.Duration `yaml:"timeout" env-default:"5s"`
		// Idle timeout in seconds.
		IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
		// Shutdown timeout in seconds.
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	}
	// Config for application's logger.
	Logger struct {
		// Path to store log files.
		Path string `yaml:"path" env:"LOG_PATH"`
		// Application logging level.
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		// Log files details.
		MaxSizeMB  int `yaml:"max_size_mb" env-default:"100"`
		MaxBackups int `yaml:"max_backups" env-default:"3"`
		MaxAgeDays int `yaml:"max_age_days" env-default:"28"`
	}
	// Config for JWT.
	JWT struct {
		// Shared signing secret. Both services must be given the same value.
		SigningKey string `yaml:"signing_key" env:"JWT_SECRET"`
	}
	// Config for the gateway admission filter.
	RateLimit struct {
		// Length of the sliding window.
		Window time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
		// Requests allowed per client within one window.
		Requests int `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"100"`
		// Optional Redis address. Counters are kept in memory when empty.
		RedisAddr string `yaml:"redis_addr" env:"RATE_LIMIT_REDIS_ADDR"`
		// Take the client address from X-Forwarded-For / X-Real-IP.
		TrustProxy bool `yaml:"trust_proxy" env:"RATE_LIMIT_TRUST_PROXY"`
	}
	// Config for outbound service-to-service calls.
	Upstream struct {
		Timeout time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT" env-default:"5s"`
	}
	// Config for the order store.
	DB struct {
		QueryTimeout time.Duration `yaml:"query_timeout" env:"DB_QUERY_TIMEOUT" env-default:"5s"`
	}
)

// Load returns an application configuration which is populated
// from the given configuration file (if it exists) and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err = cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else {
		// No file: fill defaults and environment only.
		if err = cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment variables: %w", err)
		}
	}

	return &cfg, nil
}

// MustLoad reads the configuration for a service, using defaultAddr
// when neither the file nor the environment sets the listen address.
func MustLoad(defaultAddr string) *Config {
	// Configuration yaml file path.
	configPath := flag.String("config", "./config/local.yml", "path to the config file")
	address := flag.String("a", "", "server startup address")
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flag wins over file and environment.
	if *address != "" {
		cfg.HTTPServer.Address = *address
	}
	if cfg.HTTPServer.Address == "" {
		cfg.HTTPServer.Address = defaultAddr
	}

	if err = cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	return cfg
}

// Validate checks the values both services depend on.
func (c *Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("jwt signing key is required")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if c.RateLimit.Requests <= 0 {
		return errors.New("rate limit requests must be positive")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream timeout must be positive")
	}
	if c.DB.QueryTimeout <= 0 {
		return errors.New("db query timeout must be positive")
	}
	return nil
}
