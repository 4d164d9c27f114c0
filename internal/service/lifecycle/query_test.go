package lifecycle_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

func TestGetOrder_Access(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	view, err := f.mgr.GetOrder(context.Background(), alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, view.Order.ID)

	_, err = f.mgr.GetOrder(context.Background(), admin, order.ID)
	assert.NoError(t, err)

	_, err = f.mgr.GetOrder(context.Background(), bob, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.mgr.GetOrder(context.Background(), domain.Principal{}, order.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.mgr.GetOrder(context.Background(), alice, "ord-missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetOrder_ShowsCurrentProductNextToSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	require.NoError(t, f.catalog.Put(ctx, domain.Product{ID: "kettle", Name: "Kettle Pro", Price: decimal.NewFromInt(1900), StockCount: 4}))

	view, err := f.mgr.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)

	item := view.Order.Items[0]
	assert.Equal(t, "Kettle", item.ProductName)
	assert.Equal(t, "1500", item.UnitPrice.String())

	product, ok := view.Product("kettle")
	require.True(t, ok)
	assert.Equal(t, "Kettle Pro", product.Name)
	assert.Equal(t, "1900", product.Price.String())
}

func TestGetOrder_RemovedProductIsOmitted(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)
	require.NoError(t, f.catalog.Delete(context.Background(), "kettle"))

	view, err := f.mgr.GetOrder(context.Background(), alice, order.ID)

	require.NoError(t, err)
	_, ok := view.Product("kettle")
	assert.False(t, ok)
	assert.Equal(t, "Kettle", view.Order.Items[0].ProductName)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.placeOrder(t)
	second := f.placeOrder(t)
	f.fillCart(t, bob.ID, domain.CartItem{ProductID: "mug", Quantity: 1})
	bobs, err := f.mgr.CreateOrder(ctx, bob, lifecycle.CreateOrderRequest{
		Address: domain.AddressInput{Address: "9 Canal Rd", City: "Karachi", PostalCode: "75500"},
	})
	require.NoError(t, err)
	_, err = f.mgr.TransitionStatus(ctx, admin, first.ID, "shipped")
	require.NoError(t, err)

	ids := func(views []lifecycle.OrderView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Order.ID)
		}
		return out
	}

	tests := []struct {
		name      string
		principal domain.Principal
		filter    lifecycle.ListFilter
		want      []string
	}{
		{name: "user sees own orders newest first", principal: alice, want: []string{second.ID, first.ID}},
		{name: "user cannot widen to another owner", principal: alice, filter: lifecycle.ListFilter{OwnerID: bob.ID}, want: []string{second.ID, first.ID}},
		{name: "admin sees everything", principal: admin, want: []string{bobs.ID, second.ID, first.ID}},
		{name: "admin filters by owner", principal: admin, filter: lifecycle.ListFilter{OwnerID: bob.ID}, want: []string{bobs.ID}},
		{name: "admin filters by status", principal: admin, filter: lifecycle.ListFilter{Status: "Shipped"}, want: []string{first.ID}},
		{name: "limit", principal: admin, filter: lifecycle.ListFilter{Limit: 1}, want: []string{bobs.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := f.mgr.ListOrders(ctx, tt.principal, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(views))
		})
	}
}

func TestListOrders_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.ListOrders(context.Background(), domain.Principal{}, lifecycle.ListFilter{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.mgr.ListOrders(context.Background(), admin, lifecycle.ListFilter{Status: "teleported"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListOrders_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t)

	views, err := f.mgr.ListOrders(context.Background(), alice, lifecycle.ListFilter{})

	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}
