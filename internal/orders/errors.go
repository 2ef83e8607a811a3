package orders

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrOutOfStock           = errors.New("out of stock")
	ErrInsufficientStock    = ErrOutOfStock
	ErrInvalidTransition    = errors.New("invalid order transition")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrStaffNotFound        = errors.New("delivery staff not found")
	ErrVendorNotFound       = errors.New("vendor not found")
	ErrMixedVendorCart      = errors.New("order items belong to more than one vendor")
	ErrInvalidInput         = errors.New("invalid input")
	ErrLedgerInconsistency  = errors.New("capital ledger head changed during append")
	ErrUnknownProductSource = errors.New("unknown product source")
	ErrDuplicateOrderNumber = errors.New("order number already taken")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product %s requested %d available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidInput wraps ErrInvalidInput with a field-level message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
