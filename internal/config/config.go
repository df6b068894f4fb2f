// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the capture server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backend names accepted by the store key.
const (
	StoreStdout   = "stdout"
	StoreS3       = "s3"
	StorePostgres = "postgres"
	StoreWebhook  = "webhook"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP     SMTPConfig     `yaml:"smtp"`
	Store    string         `yaml:"store"`
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Listen      string        `yaml:"listen"`
	Domain      string        `yaml:"domain"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// S3Config holds object storage configuration.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// PostgresConfig holds database configuration.
type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// WebhookConfig holds HTTP delivery configuration. The token fields are
// optional and enable OAuth2 client-credentials authentication.
type WebhookConfig struct {
	URL          string `yaml:"url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadDotEnv exports the variables defined in a dotenv file into the
// process environment. Variables already set in the environment are left
// alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	cfg.Store = strings.ToLower(cfg.Store)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return cfg, nil
}

// S3Configured returns true if a bucket and region are set.
func (c *Config) S3Configured() bool {
	return c.S3.Bucket != "" && c.S3.Region != ""
}

// PostgresConfigured returns true if a DSN is set.
func (c *Config) PostgresConfigured() bool {
	return c.Postgres.DSN != ""
}

// WebhookConfigured returns true if a webhook URL is set.
func (c *Config) WebhookConfigured() bool {
	return c.Webhook.URL != ""
}

// WebhookAuthEnabled returns true if all three token credentials are set.
func (c *Config) WebhookAuthEnabled() bool {
	return c.Webhook.TokenURL != "" &&
		c.Webhook.ClientID != "" &&
		c.Webhook.ClientSecret != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = "0.0.0.0:2525"
	c.SMTP.Domain = "smtp.haxmail.buzz"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_DOMAIN"); v != "" {
		c.SMTP.Domain = v
	}
	if v := os.Getenv("SMTP_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_IDLE_TIMEOUT: %w", err)
		}
		c.SMTP.IdleTimeout = d
	}

	if v := os.Getenv("STORE"); v != "" {
		c.Store = strings.ToLower(v)
	}

	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("S3_PREFIX"); v != "" {
		c.S3.Prefix = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_MIGRATE"); v != "" {
		migrate, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid POSTGRES_MIGRATE: %w", err)
		}
		c.Postgres.Migrate = migrate
	}

	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("WEBHOOK_TOKEN_URL"); v != "" {
		c.Webhook.TokenURL = v
	}
	if v := os.Getenv("WEBHOOK_CLIENT_ID"); v != "" {
		c.Webhook.ClientID = v
	}
	if v := os.Getenv("WEBHOOK_CLIENT_SECRET"); v != "" {
		c.Webhook.ClientSecret = v
	}
	if v := os.Getenv("WEBHOOK_SCOPE"); v != "" {
		c.Webhook.Scope = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}
