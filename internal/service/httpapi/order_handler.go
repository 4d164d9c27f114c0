package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

const maxRequestBody = 1 << 20

// OrderService: операции жизненного цикла, которые обслуживает REST API.
type OrderService interface {
	CreateOrder(ctx context.Context, principal domain.Principal, req lifecycle.CreateOrderRequest) (domain.Order, error)
	TransitionStatus(ctx context.Context, principal domain.Principal, orderID, status string) (domain.Order, error)
	CancelOrder(ctx context.Context, principal domain.Principal, orderID, reason string) (domain.Order, error)
	GetOrder(ctx context.Context, principal domain.Principal, orderID string) (lifecycle.OrderView, error)
	ListOrders(ctx context.Context, principal domain.Principal, filter lifecycle.ListFilter) ([]lifecycle.OrderView, error)
}

var _ OrderService = (*lifecycle.Manager)(nil)

// OrderHandler обслуживает маршруты /order.
type OrderHandler struct {
	orders OrderService
	logger *log.Entry
}

// NewOrderHandler создаёт обработчик заказов.
func NewOrderHandler(orders OrderService, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.WithField("component", "http-orders")
	}
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) requestLogger(r *http.Request) *log.Entry {
	return h.logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

// Create: POST /order/create.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), PrincipalFrom(r.Context()), lifecycle.CreateOrderRequest{
		CartOwnerID:   req.CartOwner,
		Address:       req.ShippingAddress.toInput(),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderDTO(order, nil))
}

// MyOrders: GET /order/myorders.
func (h *OrderHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	views, err := h.orders.ListOrders(r.Context(), principal, lifecycle.ListFilter{OwnerID: principal.ID})
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(views))
}

// List: GET /order/ для администратора, с фильтрами owner, status и limit.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	if err := domain.RequireRole(principal, domain.RoleAdmin); err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}

	query := r.URL.Query()
	filter := lifecycle.ListFilter{
		OwnerID: strings.TrimSpace(query.Get("owner")),
		Status:  strings.TrimSpace(query.Get("status")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	views, err := h.orders.ListOrders(r.Context(), principal, filter)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(views))
}

// Get: GET /order/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.GetOrder(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderViewDTO(view))
}

// UpdateStatus: PATCH /order/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orders.TransitionStatus(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

// Cancel: PATCH /order/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, h.requestLogger(r), err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func toOrderDTOs(views []lifecycle.OrderView) []OrderDTO {
	out := make([]OrderDTO, 0, len(views))
	for _, view := range views {
		out = append(out, toOrderViewDTO(view))
	}
	return out
}

// decodeJSON читает тело запроса; пустое тело оставляет dst нулевым.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("request body must be valid JSON")
	}
	return nil
}
