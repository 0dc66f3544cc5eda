package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("SUBMISSION_GUARD_TTL", "30s")
	t.Setenv("TX_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.StoreDriver)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.SubmissionGuardTTL != 30*time.Second {
		t.Errorf("expected 30s guard ttl, got %v", cfg.SubmissionGuardTTL)
	}
	if cfg.TxMaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.TxMaxAttempts)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Config{StoreDriver: "oracle", Timezone: "Nowhere/City"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"STORE_DRIVER", "TX_MAX_ATTEMPTS", "SUBMISSION_GUARD_TTL", "TIMEZONE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %q", want, err.Error())
		}
	}
}

func TestRequireAuth(t *testing.T) {
	cfg := Config{AuthSecret: "short"}
	if err := cfg.RequireAuth(); err == nil {
		t.Error("expected short secret to be rejected")
	}
	cfg.AuthSecret = strings.Repeat("k", 32)
	if err := cfg.RequireAuth(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("STORE_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}
