package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithField("component", "http").WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus сопоставляет доменную ошибку с HTTP-статусом и кодом ответа.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest, "insufficient_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, domain.ErrMissingAddress), errors.Is(err, domain.ErrIncompleteAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusBadRequest, "invalid_transition"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "invalid_argument"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case domain.IsVersionConflict(err):
		return http.StatusConflict, "version_conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeDomainError отвечает по классу ошибки. Внутренние ошибки логируются, клиент
// получает обезличенное сообщение.
func writeDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
		respondError(w, status, code, "internal server error")
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Details = map[string]any{
			"product":   stockErr.ProductID,
			"name":      stockErr.ProductName,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		}
	}
	respondJSON(w, status, resp)
}
