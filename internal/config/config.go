// Package config loads service settings from the environment, an optional .env
// file and an optional YAML file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Tables   TablesConfig   `mapstructure:"tables"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// AppConfig holds process level settings.
type AppConfig struct {
	Env       string `mapstructure:"env"`
	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	RunLocal  bool   `mapstructure:"run_local"`
}

// AWSConfig holds the region and an optional endpoint override.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Namespace string `mapstructure:"metrics_namespace"` // CloudWatch
}

// TablesConfig names the DynamoDB tables.
type TablesConfig struct {
	Coupons        string `mapstructure:"coupons"`
	Orders         string `mapstructure:"orders"`
	Staging        string `mapstructure:"staging"`
	PaymentIntents string `mapstructure:"payment_intents"`
	History        string `mapstructure:"history"`
	Transactions   string `mapstructure:"transactions"`
	Idempotency    string `mapstructure:"idempotency"`
}

// QueueConfig holds the notification queue.
type QueueConfig struct {
	NotificationsURL string `mapstructure:"notifications_url"`
}

// GatewayConfig holds payment gateway credentials.
type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Currency      string        `mapstructure:"currency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CheckoutConfig holds order flow knobs.
type CheckoutConfig struct {
	CODSurcharge     float64       `mapstructure:"cod_surcharge"`
	StagingTTL       time.Duration `mapstructure:"staging_ttl"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
}

// AuthConfig holds the JWT signing secret.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RedisConfig holds the cart store address.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PostgresConfig holds the catalog database DSN.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type setting struct {
	key string
	env string
	def interface{}
}

var settings = []setting{
	{"app.env", "APP_ENV", "development"},
	{"app.port", "PORT", "8080"},
	{"app.log_level", "LOG_LEVEL", "info"},
	{"app.log_format", "LOG_FORMAT", "json"},
	{"app.run_local", "RUN_LOCAL", false},
	{"aws.region", "AWS_REGION", "us-east-1"},
	{"aws.endpoint", "AWS_ENDPOINT_URL", ""},
	{"aws.metrics_namespace", "METRICS_NAMESPACE", "Checkout"},
	{"tables.coupons", "COUPONS_TABLE", "coupons"},
	{"tables.orders", "ORDERS_TABLE", "orders"},
	{"tables.staging", "STAGING_TABLE", "staging-orders"},
	{"tables.payment_intents", "PAYMENT_INTENTS_TABLE", "payment-intents"},
	{"tables.history", "HISTORY_TABLE", "order-history"},
	{"tables.transactions", "TRANSACTIONS_TABLE", "transactions"},
	{"tables.idempotency", "IDEMPOTENCY_TABLE", "idempotency"},
	{"queue.notifications_url", "NOTIFICATIONS_QUEUE_URL", ""},
	{"gateway.base_url", "GATEWAY_BASE_URL", "https://api.razorpay.com"},
	{"gateway.key_id", "RAZORPAY_KEY_ID", ""},
	{"gateway.key_secret", "RAZORPAY_SECRET_KEY", ""},
	{"gateway.webhook_secret", "RAZORPAY_WEBHOOK_SECRET", ""},
	{"gateway.currency", "CURRENCY", "INR"},
	{"gateway.timeout", "GATEWAY_TIMEOUT", "10s"},
	{"checkout.cod_surcharge", "COD_SURCHARGE", 0.0},
	{"checkout.staging_ttl", "STAGING_TTL", "24h"},
	{"checkout.history_retention", "HISTORY_RETENTION", "336h"},
	{"checkout.idempotency_ttl", "IDEMPOTENCY_TTL", "48h"},
	{"auth.jwt_secret", "JWT_SECRET", ""},
	{"redis.url", "REDIS_URL", ""},
	{"postgres.dsn", "DATABASE_URL", ""},
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every entry point needs.
func (c *Config) Validate() error {
	t := c.Tables
	for name, v := range map[string]string{
		"tables.coupons":         t.Coupons,
		"tables.orders":          t.Orders,
		"tables.staging":         t.Staging,
		"tables.payment_intents": t.PaymentIntents,
		"tables.history":         t.History,
		"tables.transactions":    t.Transactions,
		"tables.idempotency":     t.Idempotency,
	} {
		if v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if len(c.Gateway.Currency) != 3 {
		return fmt.Errorf("gateway.currency must be an ISO 4217 code")
	}
	if c.Checkout.CODSurcharge < 0 {
		return fmt.Errorf("checkout.cod_surcharge must not be negative")
	}
	if c.Checkout.StagingTTL <= 0 {
		return fmt.Errorf("checkout.staging_ttl must be positive")
	}
	return nil
}

// ValidateAPI additionally checks what the HTTP API needs.
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" || c.Gateway.WebhookSecret == "" {
		return fmt.Errorf("gateway credentials are required")
	}
	return nil
}
