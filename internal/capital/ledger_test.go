package capital

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-retail-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore() *memstore.Store {
	st := memstore.New()
	st.PutVendor(orders.Vendor{ID: "v1", Name: "Corner Shop"})
	return st
}

// conflictStore makes the first n capital inserts look like a concurrent writer took the seq.
type conflictStore struct {
	*memstore.Store
	remaining int
}

func (s *conflictStore) WithTx(ctx context.Context, fn func(orders.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx orders.Tx) error {
		return fn(conflictTx{Tx: tx, remaining: &s.remaining})
	})
}

type conflictTx struct {
	orders.Tx
	remaining *int
}

func (c conflictTx) InsertCapitalTransaction(ctx context.Context, t *orders.CapitalTransaction) error {
	if *c.remaining > 0 {
		*c.remaining--
		return fmt.Errorf("%w: injected", orders.ErrLedgerInconsistency)
	}
	return c.Tx.InsertCapitalTransaction(ctx, t)
}

func (c conflictTx) Savepoint(ctx context.Context, fn func(orders.Tx) error) error {
	return c.Tx.Savepoint(ctx, func(sp orders.Tx) error {
		return fn(conflictTx{Tx: sp, remaining: c.remaining})
	})
}

func TestAppendChainsEntries(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	l := NewLedger(st, nil)

	first, err := l.Deposit(ctx, "v1", d("500"), "opening capital")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)
	assert.True(t, first.BalanceBefore.IsZero())
	assert.Equal(t, "500.00", first.BalanceAfter.StringFixed(2))

	second, err := l.RecordPurchase(ctx, "v1", "p1", 4, d("25"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, orders.CapitalPurchase, second.Type)
	assert.Equal(t, "-100.00", second.Amount.StringFixed(2))
	assert.True(t, second.BalanceBefore.Equal(first.BalanceAfter))
	assert.Equal(t, "400.00", second.BalanceAfter.StringFixed(2))

	bal, err := l.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "400.00", bal.StringFixed(2))

	v, err := st.GetVendor(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, v.CapitalBalance.Equal(bal), "cached balance follows the ledger head")
	require.NoError(t, l.VerifyChain(ctx, "v1"))
}

func TestBalanceDefaultsToZero(t *testing.T) {
	l := NewLedger(newStore(), nil)

	bal, err := l.Balance(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	_, err = l.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, orders.ErrVendorNotFound)
}

func TestRecordConsignmentProfit(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	l := NewLedger(st, nil)

	var entry orders.CapitalTransaction
	err := st.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		entry, err = l.RecordConsignmentProfit(ctx, tx, "v1", "o1", d("100"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, orders.CapitalConsignmentProfit, entry.Type)
	assert.Equal(t, "o1", entry.OrderID)
	assert.Equal(t, "100.00", entry.Amount.StringFixed(2))
	assert.True(t, entry.BalanceBefore.IsZero())
}

func TestConsignmentSplit(t *testing.T) {
	item := orders.OrderItem{ProductID: "p1", Quantity: 2, Price: d("150")}
	due, profit := ConsignmentSplit(item, orders.Consignment{SupplierCost: d("100")})

	assert.Equal(t, "200.00", due.StringFixed(2))
	assert.Equal(t, "100.00", profit.StringFixed(2))
}

func TestCreateSupplierPaymentStartsPending(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	l := NewLedger(st, nil)

	err := st.WithTx(ctx, func(tx orders.Tx) error {
		_, err := l.CreateSupplierPayment(ctx, tx, SupplierPaymentInput{
			VendorID: "v1", ProductID: "p1", OrderID: "o1", SupplierName: "Acme",
			Quantity: 2, AmountDue: d("200"), Profit: d("100"),
		})
		return err
	})
	require.NoError(t, err)

	payments, err := st.ListSupplierPayments(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, orders.SupplierPaymentPending, payments[0].Status)
	assert.True(t, payments[0].AmountPaid.IsZero())
	assert.Equal(t, "200.00", payments[0].AmountDue.StringFixed(2))
}

func TestAppendRetriesOnHeadConflict(t *testing.T) {
	ctx := context.Background()
	st := &conflictStore{Store: newStore(), remaining: 2}
	l := NewLedger(st, nil, WithRetryPolicy(RetryPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond}))
	var delays []time.Duration
	l.sleep = func(_ context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}

	entry, err := l.Deposit(ctx, "v1", d("50"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Seq)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, delays)

	txs, err := l.Transactions(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestAppendGivesUpAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	st := &conflictStore{Store: newStore(), remaining: 10}
	l := NewLedger(st, nil, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	l.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := l.Deposit(ctx, "v1", d("50"), "")
	require.ErrorIs(t, err, orders.ErrLedgerInconsistency)
	assert.Equal(t, 7, st.remaining)

	txs, err := l.Transactions(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWithdrawRefusesOverdraft(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newStore(), nil)

	_, err := l.Deposit(ctx, "v1", d("30"), "")
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, "v1", d("31"), "")
	assert.ErrorIs(t, err, ErrInsufficientCapital)

	entry, err := l.Withdraw(ctx, "v1", d("30"), "payout")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.IsZero())
}

func TestConcurrentAppendsKeepChainIntact(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newStore(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deposit(ctx, "v1", d("2"), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, l.VerifyChain(ctx, "v1"))
	bal, err := l.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", bal.StringFixed(2))
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	l := NewLedger(st, nil)

	_, err := l.Deposit(ctx, "v1", d("10"), "")
	require.NoError(t, err)
	// forged entry that does not start at the previous head
	err = st.WithTx(ctx, func(tx orders.Tx) error {
		return tx.InsertCapitalTransaction(ctx, &orders.CapitalTransaction{
			ID: "forged", VendorID: "v1", Seq: 2, Type: orders.CapitalAdjustment,
			Amount: d("5"), BalanceBefore: d("0"), BalanceAfter: d("5"),
		})
	})
	require.NoError(t, err)

	assert.ErrorIs(t, l.VerifyChain(ctx, "v1"), ErrChainBroken)
}
