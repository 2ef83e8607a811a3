package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-retail-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

func newLedger(t *testing.T, stock int) (*Ledger, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "p1", VendorID: "v1", Name: "Kettle", Stock: stock, Price: decimal.NewFromInt(100)})
	return NewLedger(st, nil), st
}

func TestDeductStock(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger(t, 5)

	entry, err := l.DeductStock(ctx, "p1", 3, "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.ChangeSale, entry.ChangeType)
	assert.Equal(t, -3, entry.Quantity)
	assert.Equal(t, 5, entry.StockBefore)
	assert.Equal(t, 2, entry.StockAfter)
	assert.Equal(t, "o1", entry.OrderID)

	p, err := st.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestDeductStockFailures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		productID string
		qty       int
		target    error
	}{
		{name: "unknown product", productID: "nope", qty: 1, target: orders.ErrProductNotFound},
		{name: "more than stock", productID: "p1", qty: 6, target: orders.ErrInsufficientStock},
		{name: "zero quantity", productID: "p1", qty: 0, target: orders.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, st := newLedger(t, 5)

			_, err := l.DeductStock(ctx, tt.productID, tt.qty, "o1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)

			logs, err := st.ListInventoryLogs(ctx, "p1")
			require.NoError(t, err)
			assert.Empty(t, logs)
			p, _ := st.GetProduct(ctx, "p1")
			assert.Equal(t, 5, p.Stock)
		})
	}
}

func TestDeductStockReportsAvailable(t *testing.T) {
	l, _ := newLedger(t, 2)

	_, err := l.DeductStock(context.Background(), "p1", 4, "")
	var oos *orders.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.ProductID)
	assert.Equal(t, 4, oos.Requested)
	assert.Equal(t, 2, oos.Available)
}

func TestAddAndReverseUseDistinctChangeTypes(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 1)

	added, err := l.AddStock(ctx, "p1", 10, "supplier delivery")
	require.NoError(t, err)
	assert.Equal(t, orders.ChangePurchase, added.ChangeType)
	assert.Equal(t, 10, added.Quantity)
	assert.Equal(t, 11, added.StockAfter)

	reversed, err := l.ReverseStock(ctx, "p1", 2, "o9", "rejected order")
	require.NoError(t, err)
	assert.Equal(t, orders.ChangeReversal, reversed.ChangeType)
	assert.Equal(t, 11, reversed.StockBefore)
	assert.Equal(t, 13, reversed.StockAfter)
	assert.Equal(t, "o9", reversed.OrderID)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 8)

	entry, err := l.AdjustStock(ctx, "p1", 3, "cycle count")
	require.NoError(t, err)
	assert.Equal(t, orders.ChangeAdjustment, entry.ChangeType)
	assert.Equal(t, -5, entry.Quantity)
	assert.Equal(t, 3, entry.StockAfter)

	_, err = l.AdjustStock(ctx, "p1", -1, "typo")
	assert.ErrorIs(t, err, orders.ErrInvalidInput)
}

func TestHistoryKeepsChainConsistent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 5)

	_, err := l.DeductStock(ctx, "p1", 2, "o1")
	require.NoError(t, err)
	_, err = l.AddStock(ctx, "p1", 4, "restock")
	require.NoError(t, err)
	_, err = l.AdjustStock(ctx, "p1", 6, "count")
	require.NoError(t, err)

	logs, err := l.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, entry := range logs {
		assert.Equal(t, entry.StockBefore+entry.Quantity, entry.StockAfter)
		if i > 0 {
			assert.Equal(t, logs[i-1].StockAfter, entry.StockBefore)
		}
	}

	_, err = l.History(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
}

func TestLowStockProducts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	for _, p := range []orders.Product{
		{ID: "a", Name: "A", Stock: 9},
		{ID: "b", Name: "B", Stock: 0},
		{ID: "c", Name: "C", Stock: 25},
		{ID: "d", Name: "D", Stock: 10},
	} {
		st.PutProduct(p)
	}
	l := NewLedger(st, nil)

	got, err := l.LowStockProducts(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "a", "d"}, ids)

	got, err = l.LowStockProducts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
