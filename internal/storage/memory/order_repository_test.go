package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(id, owner string, createdAt time.Time) domain.Order {
	items := []domain.LineItem{
		{ProductID: "p-1", ProductName: "Kettle", Quantity: 5, UnitPrice: decimal.NewFromInt(100)},
	}
	address := domain.ShippingAddress{Address: "1 Mall Rd", City: "Lahore", PostalCode: "54000", Country: "Pakistan"}
	return domain.NewOrder(id, owner, items, address, "", createdAt)
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "customer-1", time.Now().UTC())

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || !stored.Pricing.Equal(order.Pricing) {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "customer-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	stored.Items[0].Quantity = 100

	again, _ := repo.Get(ctx, order.ID)
	if again.Items[0].Quantity != 5 {
		t.Fatal("stored order mutated through returned copy")
	}
}

func TestOrderRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, spec := range []struct{ id, owner string }{
		{"o-1", "alice"}, {"o-2", "bob"}, {"o-3", "alice"},
	} {
		order := newOrder(spec.id, spec.owner, base.Add(time.Duration(i)*time.Hour))
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	shipped, _ := repo.Get(ctx, "o-2")
	shipped.ApplyStatus(domain.OrderStatusShipped, base.Add(5*time.Hour))
	if err := repo.Save(ctx, shipped); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	all, err := repo.List(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "o-3" || all[2].ID != "o-1" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}

	alice, _ := repo.List(ctx, domain.OrderFilter{OwnerID: "alice"})
	if len(alice) != 2 {
		t.Fatalf("expected 2 orders for alice, got %v", ids(alice))
	}

	byStatus, _ := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusShipped})
	if len(byStatus) != 1 || byStatus[0].ID != "o-2" {
		t.Fatalf("unexpected status filter result %v", ids(byStatus))
	}

	limited, _ := repo.List(ctx, domain.OrderFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestOrderRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "customer-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	stored.ApplyStatus(domain.OrderStatusConfirmed, time.Now().UTC())
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "customer-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Version = 42
	if err := repo.Save(ctx, order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict error, got %v", err)
	}
}

func TestOrderRepository_SaveRejectsTimelineRewrite(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "customer-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	stored.Timeline[0].Status = domain.OrderStatusDelivered
	if err := repo.Save(ctx, stored); !errors.Is(err, domain.ErrTimelineRewrite) {
		t.Fatalf("expected ErrTimelineRewrite, got %v", err)
	}
}

func TestOrderRepository_OwnerIndexSurvivesSave(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"o-10", "o-11"} {
		if err := repo.Create(ctx, newOrder(id, "customer-9", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	stored, _ := repo.Get(ctx, "o-10")
	stored.OwnerID = "intruder"
	stored.ApplyStatus(domain.OrderStatusConfirmed, base.Add(time.Hour))
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	mine, _ := repo.List(ctx, domain.OrderFilter{OwnerID: "customer-9"})
	if got := ids(mine); len(got) != 2 || got[0] != "o-11" || got[1] != "o-10" {
		t.Fatalf("unexpected owner listing %v", got)
	}
	confirmed, _ := repo.List(ctx, domain.OrderFilter{OwnerID: "customer-9", Status: domain.OrderStatusConfirmed})
	if len(confirmed) != 1 || confirmed[0].OwnerID != "customer-9" {
		t.Fatalf("owner must not change on save: %+v", confirmed)
	}

	none, err := repo.List(ctx, domain.OrderFilter{OwnerID: "intruder"})
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %v (%v)", none, err)
	}
}

func ids(orders []domain.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
