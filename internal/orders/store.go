package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListLowStockProducts(ctx context.Context, threshold int) ([]Product, error)
	ListInventoryLogs(ctx context.Context, productID string) ([]InventoryLog, error)

	// GetOrder returns the order with items, customer and installment plan attached.
	GetOrder(ctx context.Context, id string) (Order, error)
	GetCustomer(ctx context.Context, id string) (Customer, error)
	GetStaff(ctx context.Context, id string) (DeliveryStaff, error)
	GetVendor(ctx context.Context, id string) (Vendor, error)
	ListNotifications(ctx context.Context, vendorID string) ([]VendorNotification, error)

	// LatestCapitalTransaction reports ok=false when the vendor has no entries yet.
	LatestCapitalTransaction(ctx context.Context, vendorID string) (tx CapitalTransaction, ok bool, err error)
	ListCapitalTransactions(ctx context.Context, vendorID string) ([]CapitalTransaction, error)
	ListSupplierPayments(ctx context.Context, orderID string) ([]SupplierPayment, error)
}

// Tx is one unit of work. Lock* methods hold row locks until the unit commits or rolls back.
type Tx interface {
	Reader

	// LockProducts returns only the products that exist; callers detect missing ids.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// ApplyStockDelta adds delta to stock unless the result would be negative, in which case
	// it returns *OutOfStockError and changes nothing.
	ApplyStockDelta(ctx context.Context, productID string, delta int) (before, after int, err error)
	SetStock(ctx context.Context, productID string, stock int) (before int, err error)
	InsertInventoryLog(ctx context.Context, l *InventoryLog) error

	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	InsertNotification(ctx context.Context, n *VendorNotification) error
	IncrementStaffDeliveries(ctx context.Context, staffID string, successful bool) error

	LockVendor(ctx context.Context, vendorID string) (Vendor, error)
	SetVendorBalance(ctx context.Context, vendorID string, balance decimal.Decimal) error
	// InsertCapitalTransaction returns ErrLedgerInconsistency when (vendor, seq) is taken.
	InsertCapitalTransaction(ctx context.Context, t *CapitalTransaction) error
	InsertSupplierPayment(ctx context.Context, p *SupplierPayment) error

	// Savepoint runs fn in a nested unit; an error undoes only fn's writes.
	Savepoint(ctx context.Context, fn func(Tx) error) error
}

type Store interface {
	Reader
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
