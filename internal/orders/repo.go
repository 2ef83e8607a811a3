package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the PostgreSQL Store.
type Repo struct {
	reader
	DB *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{reader: reader{q: db}, DB: db}
}

func (r *Repo) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{reader: reader{q: tx}, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type reader struct{ q querier }

const productColumns = `id, vendor_id, name, stock, price, product_source, supplier_cost,
	supplier_name, supplier_phone, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p           Product
		kind        string
		cost        decimal.Decimal
		sname, sphn string
	)
	if err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.Stock, &p.Price, &kind, &cost, &sname, &sphn, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	src, err := ParseSource(kind, cost, sname, sphn)
	if err != nil {
		return Product{}, fmt.Errorf("product %s: %w", p.ID, err)
	}
	p.Source = src
	return p, nil
}

func (r reader) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, &ProductNotFoundError{ProductID: id}
	}
	return p, err
}

func (r reader) ListLowStockProducts(ctx context.Context, threshold int) ([]Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE stock <= $1 ORDER BY stock ASC, name`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r reader) ListInventoryLogs(ctx context.Context, productID string) ([]InventoryLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, COALESCE(order_id, ''), change_type, quantity, stock_before, stock_after, notes, created_at
		FROM inventory_logs WHERE product_id=$1 ORDER BY seq`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryLog
	for rows.Next() {
		var l InventoryLog
		var ct string
		if err := rows.Scan(&l.ID, &l.ProductID, &l.OrderID, &ct, &l.Quantity, &l.StockBefore, &l.StockAfter, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ChangeType = ChangeType(ct)
		out = append(out, l)
	}
	return out, rows.Err()
}

const orderColumns = `id, order_number, customer_id, vendor_id, COALESCE(delivery_staff_id, ''),
	status, payment_status, payment_method, delivery_method, delivery_address, delivery_phone,
	governorate, pickup_location, e_wallet_type, notes, total_amount, delivery_fee, final_amount,
	down_payment, remaining_amount, inspection_result, rejection_reason, is_deleted,
	created_at, updated_at, delivered_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                          Order
		status, pay, method, dmeth string
		inspection                 string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.VendorID, &o.DeliveryStaffID,
		&status, &pay, &method, &dmeth, &o.DeliveryAddress, &o.DeliveryPhone,
		&o.Governorate, &o.PickupLocation, &o.EWalletType, &o.Notes, &o.TotalAmount, &o.DeliveryFee, &o.FinalAmount,
		&o.DownPayment, &o.RemainingAmount, &inspection, &o.RejectionReason, &o.Deleted,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(pay)
	o.PaymentMethod = PaymentMethod(method)
	o.DeliveryMethod = DeliveryMethod(dmeth)
	o.InspectionResult = InspectionResult(inspection)
	return o, nil
}

func (r reader) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price, product_source, supplier_cost, supplier_name, supplier_phone
		FROM order_items WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it          OrderItem
			kind        string
			cost        decimal.Decimal
			sname, sphn string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &kind, &cost, &sname, &sphn); err != nil {
			return err
		}
		if it.Source, err = ParseSource(kind, cost, sname, sphn); err != nil {
			return fmt.Errorf("order item %s: %w", it.ID, err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r reader) loadPlan(ctx context.Context, o *Order) error {
	var p InstallmentPlan
	err := r.q.QueryRow(ctx, `
		SELECT id, order_id, total_amount, down_payment, monthly_amount, number_of_months, interest_rate, start_date, end_date
		FROM installment_plans WHERE order_id=$1`, o.ID).
		Scan(&p.ID, &p.OrderID, &p.TotalAmount, &p.DownPayment, &p.MonthlyAmount, &p.NumberOfMonths, &p.InterestRate, &p.StartDate, &p.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	o.InstallmentPlan = &p
	return nil
}

func (r reader) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND NOT is_deleted`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return Order{}, err
	}
	if err := r.loadPlan(ctx, &o); err != nil {
		return Order{}, err
	}
	if c, err := r.GetCustomer(ctx, o.CustomerID); err == nil {
		o.Customer = &c
	} else if !errors.Is(err, ErrCustomerNotFound) {
		return Order{}, err
	}
	return o, nil
}

func (r reader) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.q.QueryRow(ctx, `SELECT id, name, phone FROM customers WHERE id=$1`, id).Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c, err
}

func (r reader) GetStaff(ctx context.Context, id string) (DeliveryStaff, error) {
	var s DeliveryStaff
	err := r.q.QueryRow(ctx, `SELECT id, name, phone, total_deliveries, successful_deliveries
		FROM delivery_staff WHERE id=$1`, id).Scan(&s.ID, &s.Name, &s.Phone, &s.TotalDeliveries, &s.SuccessfulDeliveries)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeliveryStaff{}, fmt.Errorf("%w: %s", ErrStaffNotFound, id)
	}
	return s, err
}

func (r reader) GetVendor(ctx context.Context, id string) (Vendor, error) {
	var v Vendor
	err := r.q.QueryRow(ctx, `SELECT id, name, capital_balance FROM vendors WHERE id=$1`, id).Scan(&v.ID, &v.Name, &v.CapitalBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, fmt.Errorf("%w: %s", ErrVendorNotFound, id)
	}
	return v, err
}

func (r reader) ListNotifications(ctx context.Context, vendorID string) ([]VendorNotification, error) {
	rows, err := r.q.Query(ctx, `SELECT id, vendor_id, type, title, message, order_id, created_at
		FROM vendor_notifications WHERE vendor_id=$1 ORDER BY created_at, id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VendorNotification
	for rows.Next() {
		var n VendorNotification
		if err := rows.Scan(&n.ID, &n.VendorID, &n.Type, &n.Title, &n.Message, &n.OrderID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const capitalColumns = `id, vendor_id, seq, type, amount, balance_before, balance_after,
	COALESCE(order_id, ''), description, created_at`

func scanCapital(row pgx.Row) (CapitalTransaction, error) {
	var t CapitalTransaction
	var typ string
	if err := row.Scan(&t.ID, &t.VendorID, &t.Seq, &typ, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.OrderID, &t.Description, &t.CreatedAt); err != nil {
		return CapitalTransaction{}, err
	}
	t.Type = CapitalTxType(typ)
	return t, nil
}

func (r reader) LatestCapitalTransaction(ctx context.Context, vendorID string) (CapitalTransaction, bool, error) {
	t, err := scanCapital(r.q.QueryRow(ctx, `SELECT `+capitalColumns+` FROM capital_transactions
		WHERE vendor_id=$1 ORDER BY seq DESC LIMIT 1`, vendorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return CapitalTransaction{}, false, nil
	}
	if err != nil {
		return CapitalTransaction{}, false, err
	}
	return t, true, nil
}

func (r reader) ListCapitalTransactions(ctx context.Context, vendorID string) ([]CapitalTransaction, error) {
	rows, err := r.q.Query(ctx, `SELECT `+capitalColumns+` FROM capital_transactions
		WHERE vendor_id=$1 ORDER BY seq`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CapitalTransaction
	for rows.Next() {
		t, err := scanCapital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r reader) ListSupplierPayments(ctx context.Context, orderID string) ([]SupplierPayment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, vendor_id, product_id, order_id, supplier_name, supplier_phone, quantity,
		       amount_due, amount_paid, profit, status, created_at
		FROM supplier_payments WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SupplierPayment
	for rows.Next() {
		var p SupplierPayment
		var status string
		if err := rows.Scan(&p.ID, &p.VendorID, &p.ProductID, &p.OrderID, &p.SupplierName, &p.SupplierPhone, &p.Quantity,
			&p.AmountDue, &p.AmountPaid, &p.Profit, &status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Status = SupplierPaymentStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
