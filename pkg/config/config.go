package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPVIBE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPVIBE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPVIBE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPVIBE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPVIBE_DB_DSN" required:"true"`
	Driver string `envconfig:"SHOPVIBE_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"SHOPVIBE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPVIBE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPVIBE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPVIBE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPVIBE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPVIBE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPVIBE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPVIBE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPVIBE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPVIBE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPVIBE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPVIBE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPVIBE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SMTPConfig drives the receipt mailer. When Host is empty the dispatcher
// falls back to log-only delivery.
type SMTPConfig struct {
	Host     string `envconfig:"SHOPVIBE_SMTP_HOST"`
	Port     int    `envconfig:"SHOPVIBE_SMTP_PORT" default:"587"`
	Username string `envconfig:"SHOPVIBE_SMTP_USERNAME"`
	Password string `envconfig:"SHOPVIBE_SMTP_PASSWORD"`
	From     string `envconfig:"SHOPVIBE_SMTP_FROM" default:"ShopVibe Support <support@shopvibe.test>"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPVIBE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPVIBE_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPVIBE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPVIBE_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPVIBE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval returns the outbox poll interval as a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}
