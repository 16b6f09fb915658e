package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvUpstreamBaseURL = "STOREFRONT_UPSTREAM_BASE_URL"
	EnvJWTSecret       = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer       = "STOREFRONT_JWT_ISSUER"
	EnvCacheDriver     = "STOREFRONT_CACHE_DRIVER"
	EnvRedisURL        = "STOREFRONT_REDIS_URL"
	EnvDBDriver        = "STOREFRONT_DB_DRIVER"
	EnvDBDSN           = "STOREFRONT_DB_DSN"
	EnvTaxRate         = "STOREFRONT_PRICING_TAX_RATE"
)

type Config struct {
	App       AppConfig
	Upstream  UpstreamConfig
	Redis     RedisConfig
	DB        DBConfig
	Cache     CacheConfig
	Pricing   PricingConfig
	Checkout  CheckoutConfig
	Sessions  SessionConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Cache.Driver) {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("%s=redis requires %s", EnvCacheDriver, EnvRedisURL)
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	switch strings.ToLower(c.DB.Driver) {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	if c.Pricing.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvTaxRate)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// UpstreamConfig points at the storefront REST API that owns persistence.
type UpstreamConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_UPSTREAM_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"STOREFRONT_UPSTREAM_TIMEOUT" default:"10s"`

	BreakerMaxRequests  uint32        `envconfig:"STOREFRONT_UPSTREAM_BREAKER_MAX_REQUESTS" default:"1"`
	BreakerInterval     time.Duration `envconfig:"STOREFRONT_UPSTREAM_BREAKER_INTERVAL" default:"60s"`
	BreakerOpenTimeout  time.Duration `envconfig:"STOREFRONT_UPSTREAM_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerFailureRatio float64       `envconfig:"STOREFRONT_UPSTREAM_BREAKER_FAILURE_RATIO" default:"0.6"`
	BreakerMinRequests  uint32        `envconfig:"STOREFRONT_UPSTREAM_BREAKER_MIN_REQUESTS" default:"5"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint is configured at all.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type DBConfig struct {
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STOREFRONT_DB_DSN" default:"file:storefront.db?cache=shared"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type CacheConfig struct {
	Driver     string        `envconfig:"STOREFRONT_CACHE_DRIVER" default:"memory"`
	CartTTL    time.Duration `envconfig:"STOREFRONT_CACHE_CART_TTL" default:"5m"`
	PurgeEvery time.Duration `envconfig:"STOREFRONT_CACHE_PURGE_INTERVAL" default:"1m"`
	ScanBatch  int64         `envconfig:"STOREFRONT_CACHE_SCAN_BATCH" default:"100"`
}

// PricingConfig carries the external business constants used by the calculator.
type PricingConfig struct {
	TaxRate               decimal.Decimal `envconfig:"STOREFRONT_PRICING_TAX_RATE" default:"0.08"`
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD" default:"100"`
	FlatShippingFee       decimal.Decimal `envconfig:"STOREFRONT_PRICING_FLAT_SHIPPING_FEE" default:"9.99"`
}

type CheckoutConfig struct {
	AutosaveDebounce time.Duration `envconfig:"STOREFRONT_CHECKOUT_AUTOSAVE_DEBOUNCE" default:"500ms"`
	AutosaveTTL      time.Duration `envconfig:"STOREFRONT_CHECKOUT_AUTOSAVE_TTL" default:"1h"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"STOREFRONT_SESSION_SWEEP_INTERVAL" default:"1m"`
	LoadTimeout   time.Duration `envconfig:"STOREFRONT_SESSION_LOAD_TIMEOUT" default:"10s"`
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	DiscountWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_DISCOUNT_WINDOW" default:"1m"`
	DiscountLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_DISCOUNT_LIMIT" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
}
