// Package capital keeps each vendor's capital as an append-only chain of entries and records
// what is owed to consignment suppliers.
//
// The balance of a vendor is the BalanceAfter of its highest-Seq entry. Every append locks the
// vendor row, writes entry Seq+1 chained to the current head, and copies the new balance onto
// the vendor record, all inside the caller's transaction.
package capital

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

var (
	ErrInsufficientCapital = errors.New("insufficient capital balance")
	ErrChainBroken         = errors.New("capital ledger chain broken")
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}
}

// backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

type Entry struct {
	VendorID    string
	Type        orders.CapitalTxType
	Amount      decimal.Decimal
	OrderID     string
	Description string
}

type SupplierPaymentInput struct {
	VendorID      string
	ProductID     string
	OrderID       string
	SupplierName  string
	SupplierPhone string
	Quantity      int
	AmountDue     decimal.Decimal
	Profit        decimal.Decimal
}

type Ledger struct {
	store   orders.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	retry   RetryPolicy
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Ledger)

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithRetryPolicy(p RetryPolicy) Option {
	return func(l *Ledger) {
		if p.MaxAttempts > 0 {
			l.retry = p
		}
	}
}

func NewLedger(store orders.Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   logx.OrNop(logger),
		retry: DefaultRetryPolicy(),
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Append writes e after the vendor's current head. A head conflict is retried with backoff;
// ErrLedgerInconsistency is returned only once the retry budget is spent.
func (l *Ledger) Append(ctx context.Context, tx orders.Tx, e Entry) (orders.CapitalTransaction, error) {
	if e.VendorID == "" {
		return orders.CapitalTransaction{}, orders.InvalidInput("vendor id is required")
	}
	if e.Type == "" {
		return orders.CapitalTransaction{}, orders.InvalidInput("transaction type is required")
	}
	if _, err := tx.LockVendor(ctx, e.VendorID); err != nil {
		return orders.CapitalTransaction{}, err
	}

	for attempt := 1; ; attempt++ {
		var out orders.CapitalTransaction
		err := tx.Savepoint(ctx, func(sp orders.Tx) error {
			head, ok, err := sp.LatestCapitalTransaction(ctx, e.VendorID)
			if err != nil {
				return err
			}
			before := decimal.Zero
			if ok {
				before = head.BalanceAfter
			}
			out = orders.CapitalTransaction{
				ID:            uuid.NewString(),
				VendorID:      e.VendorID,
				Seq:           head.Seq + 1,
				Type:          e.Type,
				Amount:        e.Amount,
				BalanceBefore: before,
				BalanceAfter:  before.Add(e.Amount),
				OrderID:       e.OrderID,
				Description:   e.Description,
				CreatedAt:     l.now(),
			}
			if err := sp.InsertCapitalTransaction(ctx, &out); err != nil {
				return err
			}
			return sp.SetVendorBalance(ctx, e.VendorID, out.BalanceAfter)
		})
		if err == nil {
			l.metrics.LedgerAppended(string(out.Type))
			l.log.Info("capital entry appended",
				zap.String("vendor_id", out.VendorID),
				zap.Int64("seq", out.Seq),
				zap.String("type", string(out.Type)),
				zap.String("amount", out.Amount.StringFixed(2)),
				zap.String("balance_after", out.BalanceAfter.StringFixed(2)),
			)
			return out, nil
		}
		if !errors.Is(err, orders.ErrLedgerInconsistency) {
			return orders.CapitalTransaction{}, err
		}
		if attempt >= l.retry.MaxAttempts {
			return orders.CapitalTransaction{}, fmt.Errorf("append after %d attempts: %w", attempt, err)
		}

		l.metrics.LedgerRetried()
		delay := l.retry.backoff(attempt)
		l.log.Warn("capital ledger head moved, retrying",
			zap.String("vendor_id", e.VendorID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := l.sleep(ctx, delay); err != nil {
			return orders.CapitalTransaction{}, err
		}
	}
}

func (l *Ledger) RecordConsignmentProfit(ctx context.Context, tx orders.Tx, vendorID, orderID string, profit decimal.Decimal) (orders.CapitalTransaction, error) {
	return l.Append(ctx, tx, Entry{
		VendorID:    vendorID,
		Type:        orders.CapitalConsignmentProfit,
		Amount:      profit,
		OrderID:     orderID,
		Description: "consignment profit",
	})
}

// ConsignmentSplit returns what the supplier is owed and what the vendor keeps for one line.
func ConsignmentSplit(it orders.OrderItem, c orders.Consignment) (amountDue, profit decimal.Decimal) {
	qty := decimal.NewFromInt(int64(it.Quantity))
	amountDue = c.SupplierCost.Mul(qty)
	profit = it.Price.Sub(c.SupplierCost).Mul(qty)
	return amountDue, profit
}

func (l *Ledger) CreateSupplierPayment(ctx context.Context, tx orders.Tx, in SupplierPaymentInput) (orders.SupplierPayment, error) {
	if in.Quantity <= 0 {
		return orders.SupplierPayment{}, orders.InvalidInput("supplier payment quantity must be positive")
	}
	p := orders.SupplierPayment{
		ID:            uuid.NewString(),
		VendorID:      in.VendorID,
		ProductID:     in.ProductID,
		OrderID:       in.OrderID,
		SupplierName:  in.SupplierName,
		SupplierPhone: in.SupplierPhone,
		Quantity:      in.Quantity,
		AmountDue:     in.AmountDue,
		AmountPaid:    decimal.Zero,
		Profit:        in.Profit,
		Status:        orders.SupplierPaymentPending,
		CreatedAt:     l.now(),
	}
	if err := tx.InsertSupplierPayment(ctx, &p); err != nil {
		return orders.SupplierPayment{}, err
	}
	return p, nil
}

func (l *Ledger) Deposit(ctx context.Context, vendorID string, amount decimal.Decimal, notes string) (orders.CapitalTransaction, error) {
	if !amount.IsPositive() {
		return orders.CapitalTransaction{}, orders.InvalidInput("deposit must be positive")
	}
	return l.appendOwnTx(ctx, Entry{VendorID: vendorID, Type: orders.CapitalDeposit, Amount: amount, Description: notes})
}

func (l *Ledger) Withdraw(ctx context.Context, vendorID string, amount decimal.Decimal, notes string) (orders.CapitalTransaction, error) {
	if !amount.IsPositive() {
		return orders.CapitalTransaction{}, orders.InvalidInput("withdrawal must be positive")
	}
	var out orders.CapitalTransaction
	err := l.store.WithTx(ctx, func(tx orders.Tx) error {
		v, err := tx.LockVendor(ctx, vendorID)
		if err != nil {
			return err
		}
		bal, err := l.balance(ctx, tx, v.ID)
		if err != nil {
			return err
		}
		if bal.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientCapital, bal.StringFixed(2), amount.StringFixed(2))
		}
		out, err = l.Append(ctx, tx, Entry{VendorID: vendorID, Type: orders.CapitalWithdrawal, Amount: amount.Neg(), Description: notes})
		return err
	})
	return out, err
}

// RecordPurchase debits the cost of owned stock bought from a supplier.
func (l *Ledger) RecordPurchase(ctx context.Context, vendorID, productID string, qty int, unitCost decimal.Decimal) (orders.CapitalTransaction, error) {
	if qty <= 0 || unitCost.IsNegative() {
		return orders.CapitalTransaction{}, orders.InvalidInput("purchase needs positive quantity and non-negative cost")
	}
	cost := unitCost.Mul(decimal.NewFromInt(int64(qty)))
	return l.appendOwnTx(ctx, Entry{
		VendorID:    vendorID,
		Type:        orders.CapitalPurchase,
		Amount:      cost.Neg(),
		Description: fmt.Sprintf("purchase %d x %s", qty, productID),
	})
}

func (l *Ledger) appendOwnTx(ctx context.Context, e Entry) (orders.CapitalTransaction, error) {
	var out orders.CapitalTransaction
	err := l.store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		out, err = l.Append(ctx, tx, e)
		return err
	})
	return out, err
}

// Balance is the head's BalanceAfter, or zero for a vendor without entries.
func (l *Ledger) Balance(ctx context.Context, vendorID string) (decimal.Decimal, error) {
	if _, err := l.store.GetVendor(ctx, vendorID); err != nil {
		return decimal.Zero, err
	}
	return l.balance(ctx, l.store, vendorID)
}

func (l *Ledger) balance(ctx context.Context, r orders.Reader, vendorID string) (decimal.Decimal, error) {
	head, ok, err := r.LatestCapitalTransaction(ctx, vendorID)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	return head.BalanceAfter, nil
}

func (l *Ledger) Transactions(ctx context.Context, vendorID string) ([]orders.CapitalTransaction, error) {
	return l.store.ListCapitalTransactions(ctx, vendorID)
}

// VerifyChain walks the vendor's entries and checks sequence continuity, per-entry arithmetic,
// the before/after links, and that the cached vendor balance equals the head.
func (l *Ledger) VerifyChain(ctx context.Context, vendorID string) error {
	v, err := l.store.GetVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	entries, err := l.store.ListCapitalTransactions(ctx, vendorID)
	if err != nil {
		return err
	}

	head := decimal.Zero
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			return fmt.Errorf("%w: vendor %s entry %s has seq %d, want %d", ErrChainBroken, vendorID, e.ID, e.Seq, i+1)
		}
		if !e.BalanceBefore.Add(e.Amount).Equal(e.BalanceAfter) {
			return fmt.Errorf("%w: vendor %s seq %d: %s + %s != %s", ErrChainBroken, vendorID, e.Seq,
				e.BalanceBefore.StringFixed(2), e.Amount.StringFixed(2), e.BalanceAfter.StringFixed(2))
		}
		if !e.BalanceBefore.Equal(head) {
			return fmt.Errorf("%w: vendor %s seq %d starts at %s, previous ended at %s", ErrChainBroken, vendorID, e.Seq,
				e.BalanceBefore.StringFixed(2), head.StringFixed(2))
		}
		head = e.BalanceAfter
	}
	if !v.CapitalBalance.Equal(head) {
		return fmt.Errorf("%w: vendor %s cached balance %s, ledger head %s", ErrChainBroken, vendorID,
			v.CapitalBalance.StringFixed(2), head.StringFixed(2))
	}
	return nil
}
