package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

func seeded() *Store {
	s := New()
	s.PutVendor(orders.Vendor{ID: "v1", Name: "Corner Shop"})
	s.PutProduct(orders.Product{ID: "p1", VendorID: "v1", Name: "Kettle", Stock: 5, Price: decimal.NewFromInt(100)})
	s.PutProduct(orders.Product{ID: "p2", VendorID: "v1", Name: "Mug", Stock: 30, Price: decimal.NewFromInt(5)})
	return s
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx orders.Tx) error {
		if _, _, err := tx.ApplyStockDelta(ctx, "p1", -3); err != nil {
			return err
		}
		require.NoError(t, tx.InsertInventoryLog(ctx, &orders.InventoryLog{ID: "l1", ProductID: "p1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	logs, err := s.ListInventoryLogs(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestApplyStockDeltaRefusesNegative(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	err := s.WithTx(ctx, func(tx orders.Tx) error {
		_, _, err := tx.ApplyStockDelta(ctx, "p1", -6)
		return err
	})
	var oos *orders.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 6, oos.Requested)
	assert.Equal(t, 5, oos.Available)

	err = s.WithTx(ctx, func(tx orders.Tx) error {
		_, _, err := tx.ApplyStockDelta(ctx, "ghost", 1)
		return err
	})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
}

func TestSavepointRollsBackOnlyInner(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	err := s.WithTx(ctx, func(tx orders.Tx) error {
		if _, _, err := tx.ApplyStockDelta(ctx, "p1", -1); err != nil {
			return err
		}
		inner := tx.Savepoint(ctx, func(sp orders.Tx) error {
			if _, _, err := sp.ApplyStockDelta(ctx, "p2", -10); err != nil {
				return err
			}
			return errors.New("undo")
		})
		require.Error(t, inner)

		return tx.Savepoint(ctx, func(sp orders.Tx) error {
			_, _, err := sp.ApplyStockDelta(ctx, "p2", -2)
			return err
		})
	})
	require.NoError(t, err)

	p1, _ := s.GetProduct(ctx, "p1")
	p2, _ := s.GetProduct(ctx, "p2")
	assert.Equal(t, 4, p1.Stock)
	assert.Equal(t, 28, p2.Stock)
}

func TestCapitalSeqIsUniquePerVendor(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	s.PutVendor(orders.Vendor{ID: "v2"})

	err := s.WithTx(ctx, func(tx orders.Tx) error {
		require.NoError(t, tx.InsertCapitalTransaction(ctx, &orders.CapitalTransaction{ID: "a", VendorID: "v1", Seq: 1}))
		require.NoError(t, tx.InsertCapitalTransaction(ctx, &orders.CapitalTransaction{ID: "b", VendorID: "v2", Seq: 1}))
		return tx.InsertCapitalTransaction(ctx, &orders.CapitalTransaction{ID: "c", VendorID: "v1", Seq: 1})
	})
	require.ErrorIs(t, err, orders.ErrLedgerInconsistency)

	txs, err := s.ListCapitalTransactions(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestOrderReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	s.PutCustomer(orders.Customer{ID: "c1", Name: "Mona"})

	o := orders.Order{
		ID: "o1", OrderNumber: "ORD-1", CustomerID: "c1", VendorID: "v1", Status: orders.StatusPending,
		Items: []orders.OrderItem{{ID: "i1", ProductID: "p1", Quantity: 1, Source: orders.Owned{}}},
	}
	require.NoError(t, s.WithTx(ctx, func(tx orders.Tx) error { return tx.InsertOrder(ctx, &o) }))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got.Customer)
	assert.Equal(t, "Mona", got.Customer.Name)
	got.Items[0].Quantity = 99

	again, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)

	dup := orders.Order{ID: "o2", OrderNumber: "ORD-1"}
	err = s.WithTx(ctx, func(tx orders.Tx) error { return tx.InsertOrder(ctx, &dup) })
	assert.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)

	_, err = s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestListLowStockProducts(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	s.PutProduct(orders.Product{ID: "p3", VendorID: "v1", Stock: 10})

	ps, err := s.ListLowStockProducts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "p1", ps[0].ID)
	assert.Equal(t, "p3", ps[1].ID)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := seeded().WithTx(ctx, func(orders.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
