package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func sampleOrder(id, ownerID string, createdAt time.Time) domain.Order {
	items := []domain.LineItem{
		{ProductID: "kettle", ProductName: "Kettle", Quantity: 2, UnitPrice: decimal.NewFromInt(1500)},
		{ProductID: "mug", ProductName: "Mug", Quantity: 1, UnitPrice: decimal.RequireFromString("799.50")},
	}
	address := domain.ShippingAddress{Address: "1 Mall Rd", City: "Lahore", PostalCode: "54000", Country: domain.DefaultCountry}
	return domain.NewOrder(id, ownerID, items, address, "", createdAt)
}

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := freshTestStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := sampleOrder("ord-1", "alice", now.Add(-2*time.Minute))
	second := sampleOrder("ord-2", "alice", now.Add(-time.Minute))
	other := sampleOrder("ord-3", "bob", now)

	for _, o := range []domain.Order{first, second, other} {
		require.NoError(t, repo.Create(ctx, o))
	}

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OwnerID, got.OwnerID)
	assert.Equal(t, first.ShippingAddress, got.ShippingAddress)
	assert.Equal(t, domain.DefaultPaymentMethod, got.PaymentMethod)
	assert.True(t, first.Pricing.Equal(got.Pricing), "pricing survives round trip: %+v", got.Pricing)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "799.5", got.Items[1].UnitPrice.String())
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, domain.OrderStatusPending, got.Timeline[0].Status)

	mine, err := repo.List(ctx, domain.OrderFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	limited, err := repo.List(ctx, domain.OrderFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, other.ID, limited[0].ID)

	got.ApplyStatus(domain.OrderStatusShipped, now.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.Equal(t, got.Version+1, updated.Version)
	assert.True(t, updated.Notifications.OrderShipped)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, domain.OrderStatusShipped, updated.Timeline[1].Status)

	shipped, err := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, first.ID, shipped[0].ID)
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := freshTestStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	base := sampleOrder("ord-errors", "carol", time.Now().UTC().Truncate(time.Microsecond))

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, repo.Save(ctx, base), domain.ErrOrderNotFound)

	require.NoError(t, repo.Create(ctx, base))
	assert.ErrorIs(t, repo.Create(ctx, base), domain.ErrOrderAlreadyExists)

	stale := base.Clone()
	stale.Version = 42
	assert.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)

	loaded, err := repo.Get(ctx, base.ID)
	require.NoError(t, err)
	rewritten := loaded.Clone()
	rewritten.Timeline[0].Status = domain.OrderStatusConfirmed
	assert.ErrorIs(t, repo.Save(ctx, rewritten), domain.ErrTimelineRewrite)
}

func TestOrderRepository_PostgresConcurrentSaveSingleWinner(t *testing.T) {
	store := freshTestStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	base := sampleOrder("ord-race", "dave", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, base))
	loaded, err := repo.Get(ctx, base.ID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for _, status := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusCancelled} {
		wg.Add(1)
		go func(status domain.OrderStatus) {
			defer wg.Done()
			o := loaded.Clone()
			o.ApplyStatus(status, time.Now().UTC())
			if err := repo.Save(ctx, o); errors.Is(err, domain.ErrOrderVersionConflict) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}(status)
	}
	wg.Wait()

	assert.Equal(t, 1, conflicts)
	final, err := repo.Get(ctx, base.ID)
	require.NoError(t, err)
	assert.Len(t, final.Timeline, 2)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "22001"}))
	assert.False(t, isUniqueViolation(errors.New("plain error")))
}
