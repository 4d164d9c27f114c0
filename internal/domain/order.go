package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан из корзины, ещё не подтверждён администратором.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: заказ подтверждён и готовится к отправке.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped: заказ передан службе доставки.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery: курьер везёт заказ клиенту.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered: заказ вручён.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	// DefaultCountry подставляется, если в адресе доставки не указана страна.
	DefaultCountry = "Pakistan"
	// DefaultPaymentMethod используется, если клиент не выбрал способ оплаты.
	DefaultPaymentMethod = "cash on delivery"
	// AddressNotProvided: значение-заглушка в профиле пользователя без адреса.
	AddressNotProvided = "Not provided"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// OrderStatuses возвращает все поддерживаемые статусы в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderStatuses...)
}

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	for _, known := range orderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOrderStatus разбирает статус из внешнего ввода.
// Допускаются любой регистр, пробелы и дефисы вместо подчёркиваний ("Out for Delivery").
func ParseOrderStatus(raw string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	if normalized == "canceled" {
		normalized = string(OrderStatusCancelled)
	}

	status := OrderStatus(normalized)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// LineItem: позиция заказа. Цена фиксируется в момент оформления и больше не пересчитывается.
type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// LineTotal возвращает стоимость позиции.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingAddress: адрес доставки заказа.
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// Complete сообщает, заполнены ли обязательные поля адреса.
func (a ShippingAddress) Complete() bool {
	return strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != ""
}

// NotificationFlags фиксирует, отправлялись ли письма по ключевым этапам заказа.
type NotificationFlags struct {
	OrderPlaced    bool
	OrderShipped   bool
	OrderDelivered bool
}

// TimelineEntry: запись журнала смены статусов.
type TimelineEntry struct {
	Status    OrderStatus
	UpdatedAt time.Time
}

// Order агрегирует состояние заказа, его позиции и журнал статусов.
type Order struct {
	ID              string
	OwnerID         string
	Items           []LineItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Pricing         Pricing
	Status          OrderStatus
	Timeline        []TimelineEntry
	Notifications   NotificationFlags
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder собирает заказ в статусе pending с единственной записью в журнале.
func NewOrder(id, ownerID string, items []LineItem, address ShippingAddress, paymentMethod string, now time.Time) Order {
	if strings.TrimSpace(paymentMethod) == "" {
		paymentMethod = DefaultPaymentMethod
	}
	return Order{
		ID:              id,
		OwnerID:         ownerID,
		Items:           append([]LineItem(nil), items...),
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		Pricing:         ComputePricing(items),
		Status:          OrderStatusPending,
		Timeline:        []TimelineEntry{{Status: OrderStatusPending, UpdatedAt: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplyStatus переводит заказ в новый статус, дописывает журнал и перезаписывает флаги уведомлений.
// Возвращает false, если статус не изменился: журнал при этом не трогается.
func (o *Order) ApplyStatus(status OrderStatus, at time.Time) bool {
	if o.Status == status {
		return false
	}
	if n := len(o.Timeline); n > 0 && at.Before(o.Timeline[n-1].UpdatedAt) {
		at = o.Timeline[n-1].UpdatedAt
	}

	o.Status = status
	o.Timeline = append(o.Timeline, TimelineEntry{Status: status, UpdatedAt: at})
	o.Notifications.OrderShipped = status == OrderStatusShipped
	o.Notifications.OrderDelivered = status == OrderStatusDelivered
	o.UpdatedAt = at
	return true
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	o.Items = append([]LineItem(nil), o.Items...)
	o.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return o
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerID == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !o.ShippingAddress.Complete() {
		errs = append(errs, ErrIncompleteAddress)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if len(o.Timeline) == 0 || o.Timeline[0].Status != OrderStatusPending {
		errs = append(errs, ErrTimelineRewrite)
	}

	// Итог должен совпадать с пересчётом по зафиксированным ценам.
	if !o.Pricing.Equal(ComputePricing(o.Items)) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// TimelineExtends проверяет, что журнал next является продолжением журнала prev.
func TimelineExtends(prev, next []TimelineEntry) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		if prev[i].Status != next[i].Status || !prev[i].UpdatedAt.Equal(next[i].UpdatedAt) {
			return false
		}
	}
	return true
}
