package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	orderNumberConstraint = "orders_order_number_key"
)

type pgTx struct {
	reader
	tx pgx.Tx
}

// LockProducts: lock stok per product (FOR UPDATE), urut id supaya tidak deadlock.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := t.tx.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *pgTx) ApplyStockDelta(ctx context.Context, productID string, delta int) (int, int, error) {
	var after int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, productID, delta).Scan(&after)
	if err == nil {
		return after - delta, after, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, err
	}

	// either missing or the conditional failed
	var stock int
	if err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, &ProductNotFoundError{ProductID: productID}
		}
		return 0, 0, err
	}
	return stock, stock, &OutOfStockError{ProductID: productID, Requested: -delta, Available: stock}
}

func (t *pgTx) SetStock(ctx context.Context, productID string, stock int) (int, error) {
	var before int
	err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return 0, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, productID, stock); err != nil {
		return 0, err
	}
	return before, nil
}

func (t *pgTx) InsertInventoryLog(ctx context.Context, l *InventoryLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_logs(id, product_id, order_id, change_type, quantity, stock_before, stock_after, notes, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		l.ID, l.ProductID, l.OrderID, string(l.ChangeType), l.Quantity, l.StockBefore, l.StockAfter, l.Notes, l.CreatedAt)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_id, vendor_id, delivery_staff_id, status, payment_status,
			payment_method, delivery_method, delivery_address, delivery_phone, governorate, pickup_location,
			e_wallet_type, notes, total_amount, delivery_fee, final_amount, down_payment, remaining_amount,
			inspection_result, rejection_reason, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,false,$23,$23)`,
		o.ID, o.OrderNumber, o.CustomerID, o.VendorID, o.DeliveryStaffID, string(o.Status), string(o.PaymentStatus),
		string(o.PaymentMethod), string(o.DeliveryMethod), o.DeliveryAddress, o.DeliveryPhone, o.Governorate, o.PickupLocation,
		o.EWalletType, o.Notes, o.TotalAmount, o.DeliveryFee, o.FinalAmount, o.DownPayment, o.RemainingAmount,
		string(o.InspectionResult), o.RejectionReason, o.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// insert items
	for i, it := range o.Items {
		kind, cost, sname, sphn, err := SourceColumns(it.Source)
		if err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, line_no, product_id, product_name, quantity, price,
				product_source, supplier_cost, supplier_name, supplier_phone)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			it.ID, o.ID, i+1, it.ProductID, it.ProductName, it.Quantity, it.Price, kind, cost, sname, sphn); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if p := o.InstallmentPlan; p != nil {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO installment_plans(id, order_id, total_amount, down_payment, monthly_amount,
				number_of_months, interest_rate, start_date, end_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			p.ID, o.ID, p.TotalAmount, p.DownPayment, p.MonthlyAmount, p.NumberOfMonths, p.InterestRate, p.StartDate, p.EndDate); err != nil {
			return fmt.Errorf("insert installment plan: %w", err)
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE id=$1 AND NOT is_deleted FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	if err := t.loadItems(ctx, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, delivery_staff_id=NULLIF($4,''), final_amount=$5,
			remaining_amount=$6, inspection_result=$7, rejection_reason=$8, delivered_at=$9, updated_at=$10
		WHERE id=$1`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.DeliveryStaffID, o.FinalAmount,
		o.RemainingAmount, string(o.InspectionResult), o.RejectionReason, o.DeliveredAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	return nil
}

func (t *pgTx) InsertNotification(ctx context.Context, n *VendorNotification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vendor_notifications(id, vendor_id, type, title, message, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.VendorID, n.Type, n.Title, n.Message, n.OrderID, n.CreatedAt)
	return err
}

func (t *pgTx) IncrementStaffDeliveries(ctx context.Context, staffID string, successful bool) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE delivery_staff
		SET total_deliveries = total_deliveries + 1,
		    successful_deliveries = successful_deliveries + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id=$1`, staffID, successful)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrStaffNotFound, staffID)
	}
	return nil
}

func (t *pgTx) LockVendor(ctx context.Context, vendorID string) (Vendor, error) {
	var v Vendor
	err := t.tx.QueryRow(ctx, `SELECT id, name, capital_balance FROM vendors WHERE id=$1 FOR UPDATE`, vendorID).
		Scan(&v.ID, &v.Name, &v.CapitalBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, fmt.Errorf("%w: %s", ErrVendorNotFound, vendorID)
	}
	return v, err
}

func (t *pgTx) SetVendorBalance(ctx context.Context, vendorID string, balance decimal.Decimal) error {
	ct, err := t.tx.Exec(ctx, `UPDATE vendors SET capital_balance=$2 WHERE id=$1`, vendorID, balance)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrVendorNotFound, vendorID)
	}
	return nil
}

func (t *pgTx) InsertCapitalTransaction(ctx context.Context, c *CapitalTransaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO capital_transactions(id, vendor_id, seq, type, amount, balance_before, balance_after,
			order_id, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10)`,
		c.ID, c.VendorID, c.Seq, string(c.Type), c.Amount, c.BalanceBefore, c.BalanceAfter, c.OrderID, c.Description, c.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: vendor %s seq %d", ErrLedgerInconsistency, c.VendorID, c.Seq)
	}
	return err
}

func (t *pgTx) InsertSupplierPayment(ctx context.Context, p *SupplierPayment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO supplier_payments(id, vendor_id, product_id, order_id, supplier_name, supplier_phone,
			quantity, amount_due, amount_paid, profit, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.VendorID, p.ProductID, p.OrderID, p.SupplierName, p.SupplierPhone,
		p.Quantity, p.AmountDue, p.AmountPaid, p.Profit, string(p.Status), p.CreatedAt)
	return err
}

// Savepoint: pgx.Tx.Begin on a tx creates a SAVEPOINT.
func (t *pgTx) Savepoint(ctx context.Context, fn func(Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{reader: reader{q: sp}, tx: sp}); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
