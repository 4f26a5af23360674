package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.DBSchema != "parley" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB should default to false")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PARLEY_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("PARLEY_DB_SCHEMA", "parley_staging")
	t.Setenv("PARLEY_DB_MAX_CONNS", "25")
	t.Setenv("PARLEY_HTTP_READ_TIMEOUT", "30s")
	t.Setenv("PARLEY_READINESS_REQUIRE_DB", "true")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "parley_staging" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns = %d", cfg.DBMaxConns)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB should be true")
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("PARLEY_TEST_INT", "not-a-number")
	t.Setenv("PARLEY_TEST_DUR", "-5s")
	t.Setenv("PARLEY_TEST_BOOL", "maybe")

	if got := EnvInt("PARLEY_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt = %d, want default 7", got)
	}
	if got := EnvDuration("PARLEY_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration = %v, want default 1m", got)
	}
	if got := EnvBool("PARLEY_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool = %v, want default true", got)
	}
}
