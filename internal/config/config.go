// Package config loads process configuration from YAML + environment,
// following the teacher's viper-based layering (internal/config/config.go).
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Server     ServerConfig      `validate:"required"`
	Postgres   PostgresConfig    `validate:"required"`
	Logging    LoggingConfig     `validate:"required"`
	Providers  ProvidersConfig   `validate:"required"`
	Crypt      CryptConfig       `validate:"required"`
	Webhook    WebhookConfig     `validate:"required"`
	Usage      UsageClientConfig `validate:"required"`
	Worker     WorkerConfig      `validate:"required"`
	Tax        TaxConfig
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"25"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ProvidersConfig holds per-connector settings for the PaymentProvider
// implementations (spec.md §6 "Outbound to payment providers").
type ProvidersConfig struct {
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type RazorpayConfig struct {
	KeyID     string `mapstructure:"key_id"`
	KeySecret string `mapstructure:"key_secret"`
}

// CryptConfig is the authenticated-encryption key used to encrypt provider
// credentials at rest (spec.md §6).
type CryptConfig struct {
	SecretKeyBase64 string `mapstructure:"secret_key_base64"`
}

// WebhookConfig carries the shared secret and issuer the inbound webhook
// ingress surface uses to verify WebhookClaims tokens (internal/auth).
type WebhookConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
	Issuer      string `mapstructure:"issuer" default:"billing-webhook-relay"`
}

// UsageClientConfig points at the metering service (spec.md §6).
type UsageClientConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required"`
	Timeout int    `mapstructure:"timeout_seconds" default:"10"`
}

// TaxConfig carries the merchant-of-record details the automatic tax
// engine needs on its own side of the (seller_country, customer_country,
// b2b) lookup (spec.md §4.6 step 4).
type TaxConfig struct {
	SellerCountry string `mapstructure:"seller_country"`
	SellerName    string `mapstructure:"seller_name"`
	Engine        string `mapstructure:"engine" default:"manual"`
}

// WorkerConfig bounds the cycle/due-event/outbox processors (spec.md §5).
// TenantIDs is a deliberate simplification: the system has no tenant
// directory of its own (tenant records live in whatever identity service
// owns signup), so the batch sweeps are given the tenant set to iterate
// via configuration rather than a ListTenants query.
type WorkerConfig struct {
	TenantIDs           []string `mapstructure:"tenant_ids"`
	CycleBatchLimit     int      `mapstructure:"cycle_batch_limit" default:"100"`
	DueEventBatchLimit  int      `mapstructure:"due_event_batch_limit" default:"200"`
	OutboxBatchLimit    int      `mapstructure:"outbox_batch_limit" default:"200"`
	MaxConcurrency      int      `mapstructure:"max_concurrency" default:"8"`
	MaxDeliveryAttempts int      `mapstructure:"max_delivery_attempts" default:"10"`
}

// New loads configuration from config.yaml (if present) and environment
// variables (BILLING_* prefix); an environment variable overrides the
// matching config.yaml value. A .env file only supplies variables that are
// not already set in the process environment.
func New() (*Configuration, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("billing")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("usage.timeout_seconds", 10)
	v.SetDefault("webhook.issuer", "billing-webhook-relay")
	v.SetDefault("worker.cycle_batch_limit", 100)
	v.SetDefault("worker.due_event_batch_limit", 200)
	v.SetDefault("worker.outbox_batch_limit", 200)
	v.SetDefault("worker.max_concurrency", 8)
	v.SetDefault("worker.max_delivery_attempts", 10)
	v.SetDefault("tax.engine", "manual")
}

// NewDefaultConfig returns a Configuration usable in tests, bypassing
// viper/file IO.
func NewDefaultConfig() *Configuration {
	return &Configuration{
		Server:   ServerConfig{Address: ":8080"},
		Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "billing", DBName: "billing", SSLMode: "disable", MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetimeMinutes: 60},
		Logging:  LoggingConfig{Debug: true},
		Webhook:  WebhookConfig{TokenSecret: "test-secret", Issuer: "billing-webhook-relay"},
		Usage:    UsageClientConfig{BaseURL: "http://localhost:9090", Timeout: 10},
		Worker:   WorkerConfig{CycleBatchLimit: 100, DueEventBatchLimit: 200, OutboxBatchLimit: 200, MaxConcurrency: 8, MaxDeliveryAttempts: 10},
		Tax:      TaxConfig{SellerCountry: "US", SellerName: "Test Seller Inc.", Engine: "manual"},
	}
}
