// Package memstore is an in-process orders.Store. Transactions run one at a time against a
// cloned state that replaces the live state on commit, so a failed unit leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

type state struct {
	products      map[string]orders.Product
	customers     map[string]orders.Customer
	vendors       map[string]orders.Vendor
	staff         map[string]orders.DeliveryStaff
	orders        map[string]orders.Order
	inventoryLogs []orders.InventoryLog
	capital       []orders.CapitalTransaction
	payments      []orders.SupplierPayment
	notifications []orders.VendorNotification
}

func newState() *state {
	return &state{
		products:  map[string]orders.Product{},
		customers: map[string]orders.Customer{},
		vendors:   map[string]orders.Vendor{},
		staff:     map[string]orders.DeliveryStaff{},
		orders:    map[string]orders.Order{},
	}
}

// clone copies maps and slices; Order values get their own Items slice.
func (s *state) clone() *state {
	c := &state{
		products:      make(map[string]orders.Product, len(s.products)),
		customers:     make(map[string]orders.Customer, len(s.customers)),
		vendors:       make(map[string]orders.Vendor, len(s.vendors)),
		staff:         make(map[string]orders.DeliveryStaff, len(s.staff)),
		orders:        make(map[string]orders.Order, len(s.orders)),
		inventoryLogs: slices.Clone(s.inventoryLogs),
		capital:       slices.Clone(s.capital),
		payments:      slices.Clone(s.payments),
		notifications: slices.Clone(s.notifications),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		c.orders[k] = v
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

// ---- seeding (collaborator records owned outside the core) ----

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Source == nil {
		p.Source = orders.Owned{}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.st.products[p.ID] = p
}

func (s *Store) PutCustomer(c orders.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[c.ID] = c
}

func (s *Store) PutVendor(v orders.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.vendors[v.ID] = v
}

func (s *Store) PutStaff(d orders.DeliveryStaff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.staff[d.ID] = d
}

func (s *Store) WithTx(ctx context.Context, fn func(orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{view{work}}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read() view {
	return view{s.st}
}

// Reader methods on the live state take the read lock.

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetProduct(ctx, id)
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListLowStockProducts(ctx, threshold)
}

func (s *Store) ListInventoryLogs(ctx context.Context, productID string) ([]orders.InventoryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListInventoryLogs(ctx, productID)
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetOrder(ctx, id)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetCustomer(ctx, id)
}

func (s *Store) GetStaff(ctx context.Context, id string) (orders.DeliveryStaff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetStaff(ctx, id)
}

func (s *Store) GetVendor(ctx context.Context, id string) (orders.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetVendor(ctx, id)
}

func (s *Store) ListNotifications(ctx context.Context, vendorID string) ([]orders.VendorNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListNotifications(ctx, vendorID)
}

func (s *Store) LatestCapitalTransaction(ctx context.Context, vendorID string) (orders.CapitalTransaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LatestCapitalTransaction(ctx, vendorID)
}

func (s *Store) ListCapitalTransactions(ctx context.Context, vendorID string) ([]orders.CapitalTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListCapitalTransactions(ctx, vendorID)
}

func (s *Store) ListSupplierPayments(ctx context.Context, orderID string) ([]orders.SupplierPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListSupplierPayments(ctx, orderID)
}

// view implements orders.Reader over one state; callers hold the lock.
type view struct{ st *state }

func (v view) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := v.st.products[id]
	if !ok {
		return orders.Product{}, &orders.ProductNotFoundError{ProductID: id}
	}
	return p, nil
}

func (v view) ListLowStockProducts(_ context.Context, threshold int) ([]orders.Product, error) {
	var out []orders.Product
	for _, p := range v.st.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (v view) ListInventoryLogs(_ context.Context, productID string) ([]orders.InventoryLog, error) {
	var out []orders.InventoryLog
	for _, l := range v.st.inventoryLogs {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (v view) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, ok := v.st.orders[id]
	if !ok || o.Deleted {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	o.Items = slices.Clone(o.Items)
	if c, ok := v.st.customers[o.CustomerID]; ok {
		o.Customer = &c
	}
	if o.InstallmentPlan != nil {
		plan := *o.InstallmentPlan
		o.InstallmentPlan = &plan
	}
	return o, nil
}

func (v view) GetCustomer(_ context.Context, id string) (orders.Customer, error) {
	c, ok := v.st.customers[id]
	if !ok {
		return orders.Customer{}, fmt.Errorf("%w: %s", orders.ErrCustomerNotFound, id)
	}
	return c, nil
}

func (v view) GetStaff(_ context.Context, id string) (orders.DeliveryStaff, error) {
	d, ok := v.st.staff[id]
	if !ok {
		return orders.DeliveryStaff{}, fmt.Errorf("%w: %s", orders.ErrStaffNotFound, id)
	}
	return d, nil
}

func (v view) GetVendor(_ context.Context, id string) (orders.Vendor, error) {
	ven, ok := v.st.vendors[id]
	if !ok {
		return orders.Vendor{}, fmt.Errorf("%w: %s", orders.ErrVendorNotFound, id)
	}
	return ven, nil
}

func (v view) ListNotifications(_ context.Context, vendorID string) ([]orders.VendorNotification, error) {
	var out []orders.VendorNotification
	for _, n := range v.st.notifications {
		if n.VendorID == vendorID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (v view) LatestCapitalTransaction(_ context.Context, vendorID string) (orders.CapitalTransaction, bool, error) {
	for i := len(v.st.capital) - 1; i >= 0; i-- {
		if v.st.capital[i].VendorID == vendorID {
			return v.st.capital[i], true, nil
		}
	}
	return orders.CapitalTransaction{}, false, nil
}

func (v view) ListCapitalTransactions(_ context.Context, vendorID string) ([]orders.CapitalTransaction, error) {
	var out []orders.CapitalTransaction
	for _, t := range v.st.capital {
		if t.VendorID == vendorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (v view) ListSupplierPayments(_ context.Context, orderID string) ([]orders.SupplierPayment, error) {
	var out []orders.SupplierPayment
	for _, p := range v.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

type tx struct{ view }

func (t *tx) LockProducts(_ context.Context, ids []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) ApplyStockDelta(_ context.Context, productID string, delta int) (int, int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, 0, &orders.ProductNotFoundError{ProductID: productID}
	}
	if p.Stock+delta < 0 {
		return p.Stock, p.Stock, &orders.OutOfStockError{ProductID: productID, Requested: -delta, Available: p.Stock}
	}
	before := p.Stock
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return before, p.Stock, nil
}

func (t *tx) SetStock(_ context.Context, productID string, stock int) (int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, &orders.ProductNotFoundError{ProductID: productID}
	}
	before := p.Stock
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return before, nil
}

func (t *tx) InsertInventoryLog(_ context.Context, l *orders.InventoryLog) error {
	t.st.inventoryLogs = append(t.st.inventoryLogs, *l)
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, dup := t.st.orders[o.ID]; dup {
		return fmt.Errorf("insert order: duplicate id %s", o.ID)
	}
	for _, existing := range t.st.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("%w: %s", orders.ErrDuplicateOrderNumber, o.OrderNumber)
		}
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	stored.Customer = nil
	if o.InstallmentPlan != nil {
		plan := *o.InstallmentPlan
		stored.InstallmentPlan = &plan
	}
	t.st.orders[o.ID] = stored
	return nil
}

func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, o.ID)
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.DeliveryStaffID = o.DeliveryStaffID
	cur.FinalAmount = o.FinalAmount
	cur.RemainingAmount = o.RemainingAmount
	cur.InspectionResult = o.InspectionResult
	cur.RejectionReason = o.RejectionReason
	cur.DeliveredAt = o.DeliveredAt
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *tx) InsertNotification(_ context.Context, n *orders.VendorNotification) error {
	t.st.notifications = append(t.st.notifications, *n)
	return nil
}

func (t *tx) IncrementStaffDeliveries(_ context.Context, staffID string, successful bool) error {
	d, ok := t.st.staff[staffID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrStaffNotFound, staffID)
	}
	d.TotalDeliveries++
	if successful {
		d.SuccessfulDeliveries++
	}
	t.st.staff[staffID] = d
	return nil
}

func (t *tx) LockVendor(ctx context.Context, vendorID string) (orders.Vendor, error) {
	return t.GetVendor(ctx, vendorID)
}

func (t *tx) SetVendorBalance(_ context.Context, vendorID string, balance decimal.Decimal) error {
	v, ok := t.st.vendors[vendorID]
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrVendorNotFound, vendorID)
	}
	v.CapitalBalance = balance
	t.st.vendors[vendorID] = v
	return nil
}

func (t *tx) InsertCapitalTransaction(_ context.Context, c *orders.CapitalTransaction) error {
	for _, e := range t.st.capital {
		if e.VendorID == c.VendorID && e.Seq == c.Seq {
			return fmt.Errorf("%w: vendor %s seq %d", orders.ErrLedgerInconsistency, c.VendorID, c.Seq)
		}
	}
	t.st.capital = append(t.st.capital, *c)
	return nil
}

func (t *tx) InsertSupplierPayment(_ context.Context, p *orders.SupplierPayment) error {
	t.st.payments = append(t.st.payments, *p)
	return nil
}

func (t *tx) Savepoint(_ context.Context, fn func(orders.Tx) error) error {
	nested := t.st.clone()
	if err := fn(&tx{view{nested}}); err != nil {
		return err
	}
	*t.st = *nested
	return nil
}
