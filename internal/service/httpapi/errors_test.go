package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		want     string
	}{
		{err: domain.ErrUnauthenticated, wantCode: http.StatusUnauthorized, want: "unauthenticated"},
		{err: domain.ErrForbidden, wantCode: http.StatusForbidden, want: "forbidden"},
		{err: &domain.InsufficientStockError{ProductID: "mug"}, wantCode: http.StatusBadRequest, want: "insufficient_stock"},
		{err: domain.ErrEmptyCart, wantCode: http.StatusBadRequest, want: "empty_cart"},
		{err: domain.ErrMissingAddress, wantCode: http.StatusBadRequest, want: "invalid_address"},
		{err: domain.ErrIncompleteAddress, wantCode: http.StatusBadRequest, want: "invalid_address"},
		{err: domain.ErrInvalidStatus, wantCode: http.StatusBadRequest, want: "invalid_status"},
		{err: domain.ErrInvalidTransition, wantCode: http.StatusBadRequest, want: "invalid_transition"},
		{err: domain.ErrInvalidOrderID, wantCode: http.StatusBadRequest, want: "invalid_argument"},
		{err: fmt.Errorf("load: %w", domain.ErrOrderNotFound), wantCode: http.StatusNotFound, want: "not_found"},
		{err: domain.ErrOrderVersionConflict, wantCode: http.StatusConflict, want: "version_conflict"},
		{err: errors.New("disk on fire"), wantCode: http.StatusInternalServerError, want: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantCode, status)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestWriteDomainError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()

	writeDomainError(rec, log.NewEntry(log.New()), errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteDomainError_StockDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	writeDomainError(rec, log.NewEntry(log.New()), &domain.InsufficientStockError{
		ProductID: "mug", ProductName: "Mug", Available: 1, Requested: 4,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_stock", body.Code)
	assert.Equal(t, "Mug", body.Details["name"])
	assert.EqualValues(t, 1, body.Details["available"])
	assert.EqualValues(t, 4, body.Details["requested"])
}
