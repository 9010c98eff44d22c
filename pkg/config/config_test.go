package config

import (
	"strings"
	"testing"
)

func TestEnsureDSNPassthrough(t *testing.T) {
	cfg := DBConfig{DSN: "postgres://settle:pw@localhost:5432/veilcare"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DSN != "postgres://settle:pw@localhost:5432/veilcare" {
		t.Fatalf("dsn mutated: %s", cfg.DSN)
	}
}

func TestEnsureDSNFromLegacyParts(t *testing.T) {
	cfg := DBConfig{
		LegacyHost:     "localhost",
		LegacyPort:     5432,
		LegacyUser:     "settle",
		LegacyPassword: "pw",
		LegacyName:     "veilcare",
		LegacySSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"postgres://", "settle", "localhost:5432", "veilcare", "sslmode=disable"} {
		if !strings.Contains(cfg.DSN, want) {
			t.Fatalf("dsn %q missing %q", cfg.DSN, want)
		}
	}
}

func TestEnsureDSNMissingParts(t *testing.T) {
	cfg := DBConfig{LegacyHost: "localhost"}
	err := cfg.ensureDSN()
	if err == nil {
		t.Fatal("expected error when user and name are missing")
	}
	if !strings.Contains(err.Error(), EnvDBUser) || !strings.Contains(err.Error(), EnvDBName) {
		t.Fatalf("error should name the missing variables, got %v", err)
	}
}

func TestGatewayEnvironmentDefaults(t *testing.T) {
	if got := (GatewayConfig{}).Environment(); got != "sandbox" {
		t.Fatalf("expected sandbox default, got %s", got)
	}
	if got := (GatewayConfig{Env: " Production "}).Environment(); got != "production" {
		t.Fatalf("expected normalized production, got %s", got)
	}
}
