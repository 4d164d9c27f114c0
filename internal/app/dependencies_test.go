package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewDependencies_Memory(t *testing.T) {
	deps, err := NewDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "dependencies"))
	if err != nil {
		t.Fatalf("NewDependencies(memory) failed: %v", err)
	}
	defer deps.Close(context.Background())

	if deps.Orders == nil || deps.Catalog == nil || deps.Carts == nil || deps.Profiles == nil {
		t.Fatal("memory stores must be initialized")
	}
	if deps.Outbox == nil || deps.Idempotency == nil {
		t.Fatal("outbox and idempotency repositories must be initialized")
	}
	if deps.Products != deps.Catalog {
		t.Fatal("without redis products must be read from the catalog")
	}
	if deps.Notifier == nil {
		t.Fatal("notifier must be initialized")
	}

	if _, err := deps.Catalog.Get(context.Background(), "kettle"); err == nil {
		t.Fatal("catalog must be empty without demo data")
	}
}

func TestNewDependencies_DemoData(t *testing.T) {
	deps, err := NewDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory, SeedDemoData: true}, nil)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}

	cart, err := deps.Carts.Get(context.Background(), "demo")
	if err != nil {
		t.Fatalf("get demo cart: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 demo cart items, got %d", len(cart.Items))
	}
	if _, err := deps.Profiles.Get(context.Background(), "demo"); err != nil {
		t.Fatalf("get demo profile: %v", err)
	}
}

func TestNewDependencies_UnreachableRedisDisablesCache(t *testing.T) {
	deps, err := NewDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     "127.0.0.1:1",
	}, nil)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	if deps.Products != deps.Catalog {
		t.Fatal("expected catalog fallback when redis is unavailable")
	}
}

func TestNewDependencies_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unsupported driver", cfg: Config{StorageDriver: "sqlite"}},
		{name: "postgres without dsn or mongo", cfg: Config{StorageDriver: StorageDriverPostgres, PostgresDSN: "postgres://127.0.0.1:1/storefront?connect_timeout=1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDependencies(context.Background(), tt.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
