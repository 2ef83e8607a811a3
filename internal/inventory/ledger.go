// Package inventory owns every change to product stock. Each mutation writes one
// InventoryLog row whose stock_after = stock_before + quantity.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

const DefaultLowStockThreshold = 10

type Ledger struct {
	store             orders.Store
	log               *zap.Logger
	metrics           *metrics.Metrics
	lowStockThreshold int
	now               func() time.Time
}

type Option func(*Ledger)

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithLowStockThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.lowStockThreshold = n
		}
	}
}

func NewLedger(store orders.Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:             store,
		log:               logx.OrNop(logger),
		lowStockThreshold: DefaultLowStockThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// DeductStock removes qty units sold under orderID.
func (l *Ledger) DeductStock(ctx context.Context, productID string, qty int, orderID string) (orders.InventoryLog, error) {
	return l.inTx(ctx, func(tx orders.Tx) (orders.InventoryLog, error) {
		return l.DeductTx(ctx, tx, productID, qty, orderID)
	})
}

// AddStock records stock received from a supplier.
func (l *Ledger) AddStock(ctx context.Context, productID string, qty int, notes string) (orders.InventoryLog, error) {
	return l.inTx(ctx, func(tx orders.Tx) (orders.InventoryLog, error) {
		return l.AddTx(ctx, tx, productID, qty, notes)
	})
}

// ReverseStock returns units of a sale that did not complete.
func (l *Ledger) ReverseStock(ctx context.Context, productID string, qty int, orderID, notes string) (orders.InventoryLog, error) {
	return l.inTx(ctx, func(tx orders.Tx) (orders.InventoryLog, error) {
		return l.ReverseTx(ctx, tx, productID, qty, orderID, notes)
	})
}

// AdjustStock overwrites the stock count after a manual count.
func (l *Ledger) AdjustStock(ctx context.Context, productID string, newStock int, notes string) (orders.InventoryLog, error) {
	return l.inTx(ctx, func(tx orders.Tx) (orders.InventoryLog, error) {
		return l.AdjustTx(ctx, tx, productID, newStock, notes)
	})
}

// LowStockProducts lists products at or below threshold, lowest stock first.
// A threshold <= 0 uses the configured default.
func (l *Ledger) LowStockProducts(ctx context.Context, threshold int) ([]orders.Product, error) {
	if threshold <= 0 {
		threshold = l.lowStockThreshold
	}
	return l.store.ListLowStockProducts(ctx, threshold)
}

// History returns a product's log in the order it was written.
func (l *Ledger) History(ctx context.Context, productID string) ([]orders.InventoryLog, error) {
	if _, err := l.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return l.store.ListInventoryLogs(ctx, productID)
}

func (l *Ledger) DeductTx(ctx context.Context, tx orders.Tx, productID string, qty int, orderID string) (orders.InventoryLog, error) {
	if qty <= 0 {
		return orders.InventoryLog{}, orders.InvalidInput("deduct quantity must be positive, got %d", qty)
	}
	return l.move(ctx, tx, productID, -qty, orders.ChangeSale, orderID, "")
}

func (l *Ledger) AddTx(ctx context.Context, tx orders.Tx, productID string, qty int, notes string) (orders.InventoryLog, error) {
	if qty <= 0 {
		return orders.InventoryLog{}, orders.InvalidInput("add quantity must be positive, got %d", qty)
	}
	return l.move(ctx, tx, productID, qty, orders.ChangePurchase, "", notes)
}

func (l *Ledger) ReverseTx(ctx context.Context, tx orders.Tx, productID string, qty int, orderID, notes string) (orders.InventoryLog, error) {
	if qty <= 0 {
		return orders.InventoryLog{}, orders.InvalidInput("reversal quantity must be positive, got %d", qty)
	}
	return l.move(ctx, tx, productID, qty, orders.ChangeReversal, orderID, notes)
}

func (l *Ledger) AdjustTx(ctx context.Context, tx orders.Tx, productID string, newStock int, notes string) (orders.InventoryLog, error) {
	if newStock < 0 {
		return orders.InventoryLog{}, orders.InvalidInput("stock cannot be negative, got %d", newStock)
	}
	before, err := tx.SetStock(ctx, productID, newStock)
	if err != nil {
		return orders.InventoryLog{}, err
	}
	return l.write(ctx, tx, orders.InventoryLog{
		ProductID:   productID,
		ChangeType:  orders.ChangeAdjustment,
		Quantity:    newStock - before,
		StockBefore: before,
		StockAfter:  newStock,
		Notes:       notes,
	})
}

func (l *Ledger) move(ctx context.Context, tx orders.Tx, productID string, delta int, ct orders.ChangeType, orderID, notes string) (orders.InventoryLog, error) {
	before, after, err := tx.ApplyStockDelta(ctx, productID, delta)
	if err != nil {
		return orders.InventoryLog{}, err
	}
	return l.write(ctx, tx, orders.InventoryLog{
		ProductID:   productID,
		OrderID:     orderID,
		ChangeType:  ct,
		Quantity:    delta,
		StockBefore: before,
		StockAfter:  after,
		Notes:       notes,
	})
}

func (l *Ledger) write(ctx context.Context, tx orders.Tx, entry orders.InventoryLog) (orders.InventoryLog, error) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = l.now()
	if err := tx.InsertInventoryLog(ctx, &entry); err != nil {
		return orders.InventoryLog{}, err
	}
	l.log.Debug("stock moved",
		zap.String("product_id", entry.ProductID),
		zap.String("change_type", string(entry.ChangeType)),
		zap.Int("quantity", entry.Quantity),
		zap.Int("stock_before", entry.StockBefore),
		zap.Int("stock_after", entry.StockAfter),
	)
	return entry, nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(orders.Tx) (orders.InventoryLog, error)) (orders.InventoryLog, error) {
	var entry orders.InventoryLog
	err := l.store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		entry, err = fn(tx)
		return err
	})
	if err != nil {
		return orders.InventoryLog{}, err
	}
	l.metrics.StockMoved(string(entry.ChangeType))
	return entry, nil
}
