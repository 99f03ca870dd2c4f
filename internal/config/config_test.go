package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("expected bcrypt cost 10, got %d", cfg.BcryptCost)
	}
	if cfg.TwoFactorTokenTTL != 5*time.Minute {
		t.Fatalf("expected 2fa ttl 5m, got %v", cfg.TwoFactorTokenTTL)
	}
	if cfg.VerificationTokenTTL != time.Hour || cfg.ResetTokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttls, got %v / %v", cfg.VerificationTokenTTL, cfg.ResetTokenTTL)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Fatalf("expected access ttl 15m, got %v", cfg.AccessTTL())
	}
}

func TestLoadConfig_PostgresRequiresURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestValidate_RejectsBcryptCost(t *testing.T) {
	cfg := Config{
		DBDriver:             "memory",
		BcryptCost:           2,
		VerificationTokenTTL: time.Hour,
		ResetTokenTTL:        time.Hour,
		TwoFactorTokenTTL:    time.Minute,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for low bcrypt cost")
	}
}

func TestLoadConfig_NormalizesDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", " SQLite ")
	t.Setenv("SQLITE_PATH", "test.db")
	t.Setenv("TWO_FACTOR_TOKEN_TTL", "2m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("expected driver sqlite, got %q", cfg.DBDriver)
	}
	if cfg.TwoFactorTokenTTL != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", cfg.TwoFactorTokenTTL)
	}
}
