package httpapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// ShippingAddressDTO: адрес доставки в запросах и ответах.
type ShippingAddressDTO struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CreateOrderRequest: тело POST /order/create. Все поля опциональны.
type CreateOrderRequest struct {
	ShippingAddress *ShippingAddressDTO `json:"shippingAddress,omitempty"`
	PaymentMethod   string              `json:"paymentMethod,omitempty"`
	// CartOwner: оформить корзину другого пользователя (только администратор).
	CartOwner string `json:"cartOwner,omitempty"`
}

// UpdateStatusRequest: тело PATCH /order/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// CancelOrderRequest: тело PATCH /order/{id}/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ProductDTO: текущее состояние товара рядом с зафиксированной позицией.
type ProductDTO struct {
	Name       string      `json:"name"`
	Price      json.Number `json:"price"`
	StockCount int         `json:"stockCount"`
}

// OrderItemDTO: позиция заказа с ценой на момент оформления.
type OrderItemDTO struct {
	Product  string      `json:"product"`
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
	Current  *ProductDTO `json:"current,omitempty"`
}

// TimelineEntryDTO: запись журнала статусов.
type TimelineEntryDTO struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailNotificationDTO: флаги отправленных писем.
type EmailNotificationDTO struct {
	OrderPlaced    bool `json:"orderPlaced"`
	OrderShipped   bool `json:"orderShipped"`
	OrderDelivered bool `json:"orderDelivered"`
}

// OrderDTO: представление заказа в API.
type OrderDTO struct {
	ID                string               `json:"id"`
	Owner             string               `json:"owner"`
	Items             []OrderItemDTO       `json:"items"`
	ShippingAddress   ShippingAddressDTO   `json:"shippingAddress"`
	PaymentMethod     string               `json:"paymentMethod"`
	Subtotal          json.Number          `json:"subtotal"`
	Tax               json.Number          `json:"tax"`
	ShippingFee       json.Number          `json:"shippingFee"`
	Discount          json.Number          `json:"discount"`
	TotalPrice        json.Number          `json:"totalPrice"`
	Status            string               `json:"status"`
	Timeline          []TimelineEntryDTO   `json:"timeline"`
	EmailNotification EmailNotificationDTO `json:"emailNotification"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

// money выводит сумму JSON-числом из точного десятичного представления.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (in *ShippingAddressDTO) toInput() domain.AddressInput {
	if in == nil {
		return domain.AddressInput{}
	}
	return domain.AddressInput{
		Address:    in.Address,
		City:       in.City,
		PostalCode: in.PostalCode,
		Country:    in.Country,
	}
}

func toOrderDTO(order domain.Order, products map[string]domain.Product) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		dto := OrderItemDTO{
			Product:  item.ProductID,
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    money(item.UnitPrice),
		}
		if current, ok := products[item.ProductID]; ok {
			dto.Current = &ProductDTO{
				Name:       current.Name,
				Price:      money(current.Price),
				StockCount: current.StockCount,
			}
		}
		items = append(items, dto)
	}

	timeline := make([]TimelineEntryDTO, 0, len(order.Timeline))
	for _, entry := range order.Timeline {
		timeline = append(timeline, TimelineEntryDTO{Status: string(entry.Status), UpdatedAt: entry.UpdatedAt})
	}

	return OrderDTO{
		ID:    order.ID,
		Owner: order.OwnerID,
		Items: items,
		ShippingAddress: ShippingAddressDTO{
			Address:    order.ShippingAddress.Address,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod: order.PaymentMethod,
		Subtotal:      money(order.Pricing.Subtotal),
		Tax:           money(order.Pricing.Tax),
		ShippingFee:   money(order.Pricing.ShippingFee),
		Discount:      money(order.Pricing.Discount),
		TotalPrice:    money(order.Pricing.Total),
		Status:        string(order.Status),
		Timeline:      timeline,
		EmailNotification: EmailNotificationDTO{
			OrderPlaced:    order.Notifications.OrderPlaced,
			OrderShipped:   order.Notifications.OrderShipped,
			OrderDelivered: order.Notifications.OrderDelivered,
		},
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func toOrderViewDTO(view lifecycle.OrderView) OrderDTO {
	return toOrderDTO(view.Order, view.Products)
}
