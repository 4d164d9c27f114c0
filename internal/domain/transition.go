package domain

import (
	"fmt"
	"strings"
)

// TransitionPolicy решает, допустим ли переход между статусами заказа.
type TransitionPolicy interface {
	Name() string
	Allows(from, to OrderStatus) bool
}

const (
	// PolicyPermissive разрешает любой переход, кроме возврата в pending.
	PolicyPermissive = "permissive"
	// PolicyStrict разрешает только рёбра явного графа жизненного цикла.
	PolicyStrict = "strict"
)

type permissivePolicy struct{}

// PermissivePolicy позволяет администратору выставить любой статус (например, чтобы исправить ошибку),
// pending остаётся только начальным состоянием.
func PermissivePolicy() TransitionPolicy { return permissivePolicy{} }

func (permissivePolicy) Name() string { return PolicyPermissive }

func (permissivePolicy) Allows(from, to OrderStatus) bool {
	return from.Valid() && to.Valid() && to != OrderStatusPending
}

type graphPolicy struct {
	edges map[OrderStatus][]OrderStatus
}

// StrictPolicy описывает жизненный цикл как ориентированный граф; delivered и cancelled терминальны.
func StrictPolicy() TransitionPolicy {
	return graphPolicy{edges: map[OrderStatus][]OrderStatus{
		OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed:      {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered},
		OrderStatusOutForDelivery: {OrderStatusDelivered},
	}}
}

func (graphPolicy) Name() string { return PolicyStrict }

func (p graphPolicy) Allows(from, to OrderStatus) bool {
	for _, next := range p.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PolicyByName возвращает политику переходов по имени из конфигурации.
func PolicyByName(name string) (TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyPermissive:
		return PermissivePolicy(), nil
	case PolicyStrict:
		return StrictPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown transition policy %q", name)
	}
}
