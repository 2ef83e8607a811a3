package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-retail-fulfillment/internal/capital"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
)

const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeNotFound              = "RESOURCE_NOT_FOUND"
	CodeOutOfStock            = "OUT_OF_STOCK"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeUnprocessable         = "UNPROCESSABLE"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal              = "INTERNAL_ERROR"
)

// apiError is the JSON body of every non-2xx response.
type apiError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
}

func mapError(err error) *apiError {
	var (
		oos *orders.OutOfStockError
		pnf *orders.ProductNotFoundError
	)
	switch {
	case errors.As(err, &oos):
		return &apiError{Code: CodeOutOfStock, Message: err.Error(), HTTPStatus: http.StatusConflict, Details: map[string]string{
			"product_id": oos.ProductID,
			"requested":  strconv.Itoa(oos.Requested),
			"available":  strconv.Itoa(oos.Available),
		}}
	case errors.As(err, &pnf):
		return &apiError{Code: CodeNotFound, Message: err.Error(), HTTPStatus: http.StatusNotFound,
			Details: map[string]string{"product_id": pnf.ProductID}}
	case errors.Is(err, orders.ErrInvalidInput):
		return &apiError{Code: CodeValidation, Message: err.Error(), HTTPStatus: http.StatusBadRequest}
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrCustomerNotFound),
		errors.Is(err, orders.ErrStaffNotFound),
		errors.Is(err, orders.ErrVendorNotFound):
		return &apiError{Code: CodeNotFound, Message: err.Error(), HTTPStatus: http.StatusNotFound}
	case errors.Is(err, orders.ErrInvalidTransition):
		return &apiError{Code: CodeInvalidTransition, Message: err.Error(), HTTPStatus: http.StatusConflict}
	case errors.Is(err, orders.ErrMixedVendorCart), errors.Is(err, capital.ErrInsufficientCapital):
		return &apiError{Code: CodeUnprocessable, Message: err.Error(), HTTPStatus: http.StatusUnprocessableEntity}
	case errors.Is(err, orders.ErrLedgerInconsistency), errors.Is(err, redisx.ErrLockNotObtained),
		errors.Is(err, orders.ErrDuplicateOrderNumber):
		return &apiError{Code: CodeServiceUnavailable, Message: "busy, retry later", HTTPStatus: http.StatusServiceUnavailable}
	default:
		return &apiError{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError}
	}
}
