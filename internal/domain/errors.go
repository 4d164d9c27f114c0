package domain

import (
	"errors"
	"fmt"
)

// Ошибки валидации входных данных (HTTP 400).
var (
	// ErrEmptyCart: корзина пользователя пуста или отсутствует.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock: на складе меньше единиц, чем в корзине.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrMissingAddress: адрес не передан и не заполнен в профиле.
	ErrMissingAddress = errors.New("shipping address is required")
	// ErrIncompleteAddress: адрес из профиля не содержит города или индекса.
	ErrIncompleteAddress = errors.New("shipping address is incomplete")
	// ErrInvalidStatus: неизвестное значение статуса.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition: переход запрещён политикой переходов.
	ErrInvalidTransition = errors.New("status transition is not allowed")
	// ErrInvalidOrderID: пустой или некорректный идентификатор заказа.
	ErrInvalidOrderID = errors.New("invalid order id")
	// ErrOwnerRequired: у заказа нет владельца.
	ErrOwnerRequired = errors.New("order owner is required")
	// ErrItemQtyInvalid: количество в позиции <= 0.
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// ErrItemPriceInvalid: отрицательная цена позиции.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrAmountMismatch: итог заказа не совпадает с пересчётом по позициям.
	ErrAmountMismatch = errors.New("order pricing does not match items")
)

// Ошибки доступа.
var (
	// ErrUnauthenticated: запрос без аутентифицированного участника (HTTP 401).
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden: у участника нет прав на операцию (HTTP 403).
	ErrForbidden = errors.New("forbidden")
)

// Ошибки хранилищ.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists: заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrTimelineRewrite: сохраняемый журнал статусов не продолжает сохранённый.
	ErrTimelineRewrite = errors.New("order timeline can only be appended")
	// ErrProductNotFound: товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProfileNotFound: профиль пользователя не найден.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation сообщает, относится ли ошибка к ошибкам входных данных.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyCart,
		ErrInsufficientStock,
		ErrMissingAddress,
		ErrIncompleteAddress,
		ErrInvalidStatus,
		ErrInvalidTransition,
		ErrInvalidOrderID,
		ErrOwnerRequired,
		ErrItemQtyInvalid,
		ErrItemPriceInvalid,
		ErrAmountMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound сообщает, что запрошенная сущность отсутствует.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrProfileNotFound)
}

// InsufficientStockError сообщает, какого товара не хватило и сколько его осталось.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: %d available", name, e.Available)
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
