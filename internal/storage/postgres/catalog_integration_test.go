package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCatalog_PostgresReserveIsAllOrNothing(t *testing.T) {
	store := freshTestStore(t)
	catalog := NewCatalog(store)
	ctx := context.Background()

	require.NoError(t, catalog.Put(ctx, domain.Product{ID: "kettle", Name: "Kettle", Price: decimal.NewFromInt(1500), StockCount: 5}))
	require.NoError(t, catalog.Put(ctx, domain.Product{ID: "mug", Name: "Mug", Price: decimal.NewFromInt(800), StockCount: 1}))

	err := catalog.Reserve(ctx, []domain.StockRequest{
		{ProductID: "kettle", Quantity: 2},
		{ProductID: "mug", Quantity: 2},
	})
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, "Mug", stockErr.ProductName)

	kettle, err := catalog.Get(ctx, "kettle")
	require.NoError(t, err)
	assert.Equal(t, 5, kettle.StockCount)

	err = catalog.Reserve(ctx, []domain.StockRequest{{ProductID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, catalog.Reserve(ctx, []domain.StockRequest{{ProductID: "kettle", Quantity: 2}}))
	require.NoError(t, catalog.Release(ctx, []domain.StockRequest{{ProductID: "kettle", Quantity: 1}}))
	kettle, err = catalog.Get(ctx, "kettle")
	require.NoError(t, err)
	assert.Equal(t, 4, kettle.StockCount)

	require.NoError(t, catalog.Delete(ctx, "kettle"))
	_, err = catalog.Get(ctx, "kettle")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCatalog_PostgresConcurrentReserveNeverOversells(t *testing.T) {
	store := freshTestStore(t)
	catalog := NewCatalog(store)
	ctx := context.Background()

	require.NoError(t, catalog.Put(ctx, domain.Product{ID: "mug", Name: "Mug", Price: decimal.NewFromInt(800), StockCount: 3}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := catalog.Reserve(ctx, []domain.StockRequest{{ProductID: "mug", Quantity: 1}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientStock, fmt.Sprintf("buyer %d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	mug, err := catalog.Get(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, 0, mug.StockCount)
}
