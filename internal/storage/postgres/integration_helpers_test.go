package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Без STOREFRONT_POSTGRES_TEST_DSN интеграционные тесты пропускаются.
const testDSNEnv = "STOREFRONT_POSTGRES_TEST_DSN"

// truncateOrder: дочерние таблицы раньше родительских.
var truncateOrder = []string{
	"idempotency_keys",
	"outbox_messages",
	"order_timeline",
	"order_items",
	"orders",
	"products",
}

// freshTestStore подключается, накатывает все миграции и очищает таблицы.
func freshTestStore(t *testing.T) *Store {
	t.Helper()

	store := connectTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.MigrateUp(ctx, 0), "migrate up")

	truncateAll(t, store)
	return store
}

func connectTestDB(t *testing.T) *Store {
	t.Helper()

	dsn, ok := os.LookupEnv(testDSNEnv)
	if dsn = strings.TrimSpace(dsn); !ok || dsn == "" {
		t.Skip(testDSNEnv + " not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, WithPoolSize(8, 4), WithApplicationName("storefront-integration-tests"))
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func truncateAll(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(truncateOrder, ", "))
	_, err := store.DB().ExecContext(ctx, stmt)
	require.NoError(t, err, stmt)
}
