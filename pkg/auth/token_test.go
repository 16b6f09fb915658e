package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "storefront"}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, 30*time.Minute, AccessTokenPayload{
		UserID: "42",
		Email:  "ada@example.com",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != "42" {
		t.Fatalf("expected user_id 42, got %s", claims.UserID)
	}
	if claims.Role != RoleCustomer {
		t.Fatalf("expected default role customer, got %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("issuer mismatch %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, AccessTokenPayload{UserID: "1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAccessTokenRejectsWrongIssuerAndSecret(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{UserID: "1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "other"}, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "nope", Issuer: cfg.Issuer}, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseAccessTokenFallsBackToSubject(t *testing.T) {
	cfg := testConfig()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   "77",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.UserID != "77" {
		t.Fatalf("expected subject fallback, got %q", parsed.UserID)
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.JWTConfig
		ttl  time.Duration
		user string
		want string
	}{
		{"missing secret", config.JWTConfig{Issuer: "x"}, time.Hour, "1", "secret"},
		{"missing issuer", config.JWTConfig{Secret: "x"}, time.Hour, "1", "issuer"},
		{"bad ttl", testConfig(), 0, "1", "ttl"},
		{"missing user", testConfig(), time.Hour, " ", "user id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MintAccessToken(tc.cfg, time.Now(), tc.ttl, AccessTokenPayload{UserID: tc.user})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
