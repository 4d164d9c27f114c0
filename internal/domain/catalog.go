package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: товар каталога. Менеджер заказов меняет только StockCount.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	StockCount int
	UpdatedAt  time.Time
}

// CartItem: ссылка на товар в корзине.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart принадлежит ровно одному пользователю.
type Cart struct {
	OwnerID   string
	Items     []CartItem
	UpdatedAt time.Time
}

// Empty сообщает, что в корзине нет позиций.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Profile: данные пользователя, нужные для доставки и уведомлений.
type Profile struct {
	UserID  string
	Email   string
	Name    string
	Address string
}

// StockRequest: сколько единиц товара нужно списать или вернуть.
type StockRequest struct {
	ProductID string
	Quantity  int
}

// StockRequestsFor собирает запросы на списание по позициям заказа, объединяя повторы товара.
func StockRequestsFor(items []LineItem) []StockRequest {
	index := make(map[string]int, len(items))
	result := make([]StockRequest, 0, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			result[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(result)
		result = append(result, StockRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return result
}
