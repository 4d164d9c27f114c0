package app

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if cfg.TransitionPolicy != "permissive" {
		t.Errorf("expected permissive transition policy, got %s", cfg.TransitionPolicy)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Errorf("outbox settings must be positive: %+v", cfg)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected IdempotencyTTL 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.IdempotencyCleanupInterval <= 0 || cfg.IdempotencyCleanupBatchSize <= 0 {
		t.Errorf("idempotency cleanup settings must be positive: %+v", cfg)
	}
	if cfg.JWTSecret != "" {
		t.Error("jwt secret must not have a default")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = " " }, wantErr: "jwt secret is required"},
		{name: "missing http addr", mutate: func(c *Config) { c.HTTPAddr = "" }, wantErr: "http addr is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "sqlite" }, wantErr: "unsupported storage driver"},
		{name: "postgres without dsn", mutate: func(c *Config) {
			c.StorageDriver = StorageDriverPostgres
			c.MongoURI = "mongodb://localhost:27017"
		}, wantErr: "postgres dsn is required"},
		{name: "postgres without mongo", mutate: func(c *Config) {
			c.StorageDriver = StorageDriverPostgres
			c.PostgresDSN = "postgres://localhost/storefront"
		}, wantErr: "mongo uri is required"},
		{name: "strict policy", mutate: func(c *Config) { c.TransitionPolicy = "strict" }},
		{name: "unknown policy", mutate: func(c *Config) { c.TransitionPolicy = "chaotic" }, wantErr: "unknown transition policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := Config{StorageDriver: "sqlite"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"http addr", "jwt secret", "sqlite"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
