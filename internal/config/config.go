// Package config loads the engine's configuration from a YAML file with
// environment variable overrides, per SPEC_FULL.md §6.2. Env vars always
// win over file values; the file supplies defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Postgres holds PG_* connection settings.
type Postgres struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

// NATS holds NATS_* connection settings for pub/sub callbacks.
type NATS struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Redis holds the optional leader-election lease connection settings.
type Redis struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// Server holds the admission API's HTTP settings.
type Server struct {
	Port        int    `yaml:"port" validate:"required"`
	MetricsPort int    `yaml:"metrics_port" validate:"required"`
	APIKey      string `yaml:"api_key" validate:"required"`
}

// Logging holds the level used by the logging stack.
type Logging struct {
	Level string `yaml:"level"`
}

// Config is the engine's full runtime configuration.
type Config struct {
	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`
	Redis    Redis    `yaml:"redis"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Default returns a Config with the same defaults the teacher's own
// configuration layer ships: empty credentials, standard ports, info
// logging.
func Default() *Config {
	return &Config{
		Postgres: Postgres{Host: "localhost", Port: 5432, SSLMode: "disable"},
		NATS:     NATS{Port: 4222},
		Server:   Server{Port: 8080, MetricsPort: 9090},
		Logging:  Logging{Level: "info"},
	}
}

// Load reads path (if it exists) as YAML on top of Default, then applies
// environment overrides, then validates. A missing file is not an error:
// env-only configuration is a supported deployment mode.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Postgres.Host, "PG_HOST")
	overrideInt(&cfg.Postgres.Port, "PG_PORT")
	overrideString(&cfg.Postgres.User, "PG_USER")
	overrideString(&cfg.Postgres.Password, "PG_PASSWORD")
	overrideString(&cfg.Postgres.DBName, "PG_DB_NAME")
	overrideString(&cfg.Postgres.SSLMode, "PG_SSL_MODE")

	overrideString(&cfg.NATS.Host, "NATS_HOST")
	overrideInt(&cfg.NATS.Port, "NATS_PORT")
	overrideString(&cfg.NATS.User, "NATS_USER")
	overrideString(&cfg.NATS.Password, "NATS_PASSWORD")

	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
	}

	overrideInt(&cfg.Server.Port, "PORT")
	overrideInt(&cfg.Server.MetricsPort, "METRICS_PORT")
	overrideString(&cfg.Server.APIKey, "API_KEY")

	overrideString(&cfg.Logging.Level, "LOG_LEVEL")
}

func overrideString(dst *string, envKey string) {
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, envKey string) {
	v, ok := os.LookupEnv(envKey)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

var validate = validator.New()

// Validate checks the required-field constraints on cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}
