package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "KELOLA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Midtrans MidtransConfig
	Trial    TrialConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KELOLA_APP_ENV" required:"true"`
	Port         string `envconfig:"KELOLA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"KELOLA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KELOLA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KELOLA_DB_DSN" required:"true"`
	Driver string `envconfig:"KELOLA_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"KELOLA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KELOLA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KELOLA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KELOLA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KELOLA_REDIS_URL"`
	Address      string        `envconfig:"KELOLA_REDIS_ADDR"`
	Password     string        `envconfig:"KELOLA_REDIS_PASSWORD"`
	DB           int           `envconfig:"KELOLA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KELOLA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KELOLA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KELOLA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KELOLA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KELOLA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KELOLA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KELOLA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KELOLA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"KELOLA_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"KELOLA_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"KELOLA_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"KELOLA_STRIPE_SUCCESS_URL"`
	CancelURL     string `envconfig:"KELOLA_STRIPE_CANCEL_URL"`
}

// Environment reports the normalized Stripe environment name.
func (s StripeConfig) Environment() string {
	return strings.TrimSpace(strings.ToLower(s.Env))
}

type MidtransConfig struct {
	ServerKey string `envconfig:"KELOLA_MIDTRANS_SERVER_KEY"`
	ClientKey string `envconfig:"KELOLA_MIDTRANS_CLIENT_KEY"`
	Env       string `envconfig:"KELOLA_MIDTRANS_ENV" default:"sandbox"`
}

// IsProduction reports whether the gateway should run against live Midtrans.
func (m MidtransConfig) IsProduction() bool {
	return strings.EqualFold(m.Env, "production")
}

type TrialConfig struct {
	DurationDays    int `envconfig:"KELOLA_TRIAL_DURATION_DAYS" default:"14"`
	GracePeriodDays int `envconfig:"KELOLA_TRIAL_GRACE_PERIOD_DAYS" default:"3"`
}

// GracePeriod returns the configured grace window as a duration.
func (t TrialConfig) GracePeriod() time.Duration {
	if t.GracePeriodDays <= 0 {
		return 0
	}
	return time.Duration(t.GracePeriodDays) * 24 * time.Hour
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"KELOLA_CRON_INTERVAL" default:"1h"`
	LockKey        string        `envconfig:"KELOLA_CRON_LOCK_KEY" default:"kelola:cron:lock"`
	LockTTL        time.Duration `envconfig:"KELOLA_CRON_LOCK_TTL" default:"2h"`
	ReconcileBatch int           `envconfig:"KELOLA_CRON_RECONCILE_BATCH" default:"250"`
}
