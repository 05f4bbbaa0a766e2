// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CRISIS_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Escalation    EscalationConfig    `koanf:"escalation"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Directory     DirectoryConfig     `koanf:"directory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `koanf:"backend" validate:"oneof=postgres memory"`
}

// DatabaseConfig holds PostgreSQL settings. Required only when the postgres
// backend is selected.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// JWTConfig holds token validation settings.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key" validate:"required,min=32"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// EscalationConfig holds escalation engine settings. Timeouts override the
// built-in per-severity escalation procedure timeouts.
type EscalationConfig struct {
	Interval time.Duration            `koanf:"interval"`
	Timeouts map[string]time.Duration `koanf:"timeouts"`
}

// NotificationsConfig holds channel sender settings.
type NotificationsConfig struct {
	Email EmailConfig `koanf:"email"`
	SMS   SMSConfig   `koanf:"sms"`
	Chat  ChatConfig  `koanf:"chat"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// SMSConfig holds SMS gateway settings.
type SMSConfig struct {
	Enabled    bool    `koanf:"enabled"`
	GatewayURL string  `koanf:"gateway_url"`
	APIKey     string  `koanf:"api_key"`
	From       string  `koanf:"from"`
	RateLimit  float64 `koanf:"rate_limit"`
}

// ChatConfig holds chat webhook settings.
type ChatConfig struct {
	Username string `koanf:"username"`
	IconURL  string `koanf:"icon_url"`
}

// DirectoryConfig holds stakeholder directory settings. When URL is empty
// the static stakeholder list backs the directory.
type DirectoryConfig struct {
	URL      string              `koanf:"url"`
	Timeout  time.Duration       `koanf:"timeout"`
	CacheTTL time.Duration       `koanf:"cache_ttl"`
	Static   []StakeholderConfig `koanf:"static"`
}

// StakeholderConfig is one statically configured stakeholder.
type StakeholderConfig struct {
	ID        string          `koanf:"id"`
	Name      string          `koanf:"name"`
	Role      string          `koanf:"role"`
	Authority string          `koanf:"authority"`
	Contacts  []ContactConfig `koanf:"contacts"`
}

// ContactConfig is one channel endpoint for a static stakeholder.
type ContactConfig struct {
	Channel string `koanf:"channel"`
	Target  string `koanf:"target"`
}

// Load reads configuration from the given YAML file, applies CRISIS_*
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else if _, err := os.Stat("config.yaml"); err == nil {
		if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// CRISIS_SERVER_PORT=8080 overrides server.port. Double underscore keeps
	// multi-word keys addressable: CRISIS_JWT_SECRET__KEY -> jwt.secret_key.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		key = strings.ReplaceAll(key, "__", "-")
		key = strings.ReplaceAll(key, "_", ".")
		return strings.ReplaceAll(key, "-", "_")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Storage: StorageConfig{Backend: "postgres"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		JWT: JWTConfig{
			AccessTokenDuration: 15 * time.Minute,
		},
		CORS: CORSConfig{AllowedOrigins: []string{"*"}},
		Escalation: EscalationConfig{
			Interval: 30 * time.Minute,
		},
		Notifications: NotificationsConfig{
			Email: EmailConfig{SMTPPort: 587},
			SMS:   SMSConfig{RateLimit: 1},
		},
		Directory: DirectoryConfig{
			Timeout:  10 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
	}
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if cfg.Storage.Backend == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("validate config: database.url is required for the postgres backend")
	}
	return nil
}
