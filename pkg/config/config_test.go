package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.Upstream.BaseURL != "https://shop.example.com/api" {
		t.Fatalf("unexpected upstream url %q", cfg.Upstream.BaseURL)
	}
	if !cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.08")) {
		t.Fatalf("expected default tax rate 0.08, got %s", cfg.Pricing.TaxRate)
	}
	if !cfg.Pricing.FreeShippingThreshold.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected default free shipping threshold 100, got %s", cfg.Pricing.FreeShippingThreshold)
	}
	if got := cfg.Checkout.AutosaveTTL; got != time.Hour {
		t.Fatalf("expected autosave ttl 1h, got %v", got)
	}
	if cfg.Cache.Driver != CacheDriverMemory {
		t.Fatalf("expected memory cache by default, got %q", cfg.Cache.Driver)
	}
}

func TestLoad_TaxRateOverride(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvTaxRate, "0.0725")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.0725")) {
		t.Fatalf("unexpected tax rate %s", cfg.Pricing.TaxRate)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RedisDriverRequiresURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCacheDriver, CacheDriverRedis)

	if _, err := Load(); err == nil {
		t.Fatal("expected redis cache driver without url to fail")
	}

	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error with redis url: %v", err)
	}
}

func TestLoad_NegativeTaxRateRejected(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvTaxRate, "-0.1")

	if _, err := Load(); err == nil {
		t.Fatal("expected negative tax rate to fail")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvUpstreamBaseURL, "https://shop.example.com/api")
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvJWTIssuer, "storefront")
	t.Setenv(EnvDBDriver, DBDriverSQLite)
	t.Setenv(EnvDBDSN, "file::memory:?cache=shared")
}
