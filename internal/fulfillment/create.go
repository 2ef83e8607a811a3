package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

type LineInput struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	CustomerID      string
	Items           []LineInput
	DeliveryAddress string
	DeliveryPhone   string
	PaymentMethod   orders.PaymentMethod
	DeliveryMethod  orders.DeliveryMethod

	DeliveryFee    decimal.NullDecimal
	DownPayment    decimal.NullDecimal
	InterestRate   decimal.NullDecimal
	EWalletType    string
	Governorate    string
	PickupLocation string
	Notes          string
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.CustomerID) == "" {
		return orders.InvalidInput("customer id is required")
	}
	if len(in.Items) == 0 {
		return orders.InvalidInput("order needs at least one item")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return orders.InvalidInput("items[%d]: product id is required", i)
		}
		if it.Quantity <= 0 {
			return orders.InvalidInput("items[%d]: quantity must be positive, got %d", i, it.Quantity)
		}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return orders.InvalidInput("delivery address is required")
	}
	if strings.TrimSpace(in.DeliveryPhone) == "" {
		return orders.InvalidInput("delivery phone is required")
	}
	if !in.PaymentMethod.Valid() {
		return orders.InvalidInput("unknown payment method %q", in.PaymentMethod)
	}
	if !in.DeliveryMethod.Valid() {
		return orders.InvalidInput("unknown delivery method %q", in.DeliveryMethod)
	}
	if in.DeliveryFee.Valid && in.DeliveryFee.Decimal.IsNegative() {
		return orders.InvalidInput("delivery fee cannot be negative")
	}
	if in.InterestRate.Valid && in.InterestRate.Decimal.IsNegative() {
		return orders.InvalidInput("interest rate cannot be negative")
	}
	return nil
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(in []LineInput) []LineInput {
	idx := make(map[string]int, len(in))
	out := make([]LineInput, 0, len(in))
	for _, l := range in {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// CreateOrder validates every line against locked stock, then persists the order, deducts
// stock and writes the vendor notification in one transaction. Nothing is kept if any step fails.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (orders.Order, error) {
	if err := in.validate(); err != nil {
		return orders.Order{}, err
	}
	lines := mergeLines(in.Items)

	var (
		o   orders.Order
		err error
	)
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		o, err = s.createOrderTx(ctx, in, lines)
		if !errors.Is(err, orders.ErrDuplicateOrderNumber) {
			break
		}
		s.log.Warn("order number collision, regenerating", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		if errors.Is(err, orders.ErrOutOfStock) {
			s.metrics.StockRejected()
		}
		s.log.Info("order refused", zap.String("customer_id", in.CustomerID), zap.Error(err))
		return orders.Order{}, err
	}

	s.metrics.OrderCreated(string(o.PaymentMethod), string(o.DeliveryMethod))
	for range o.Items {
		s.metrics.StockMoved(string(orders.ChangeSale))
	}
	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("vendor_id", o.VendorID),
		zap.String("final_amount", o.FinalAmount.StringFixed(2)),
	)

	s.emit(ctx, orders.EventOrderCreated, o, orders.NewCreatedPayload(o))
	if o.DeliveryMethod == orders.DeliveryHome && s.dispatcher != nil {
		if err := s.dispatcher.DispatchOrder(ctx, o); err != nil {
			s.sideEffectFailed("carrier", o.ID, err)
		}
	}
	return o, nil
}

// createOrderTx runs one attempt under a fresh order id.
func (s *Service) createOrderTx(ctx context.Context, in CreateOrderInput, lines []LineInput) (orders.Order, error) {
	var o orders.Order
	err := s.store.WithTx(ctx, func(tx orders.Tx) error {
		customer, err := tx.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		sort.Strings(ids)
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		if err := checkLines(lines, products); err != nil {
			return err
		}

		now := s.now()
		o = orders.Order{
			ID:              s.newID(),
			CustomerID:      customer.ID,
			VendorID:        products[lines[0].ProductID].VendorID,
			Status:          orders.StatusPending,
			PaymentStatus:   orders.PaymentPending,
			PaymentMethod:   in.PaymentMethod,
			DeliveryMethod:  in.DeliveryMethod,
			DeliveryAddress: in.DeliveryAddress,
			DeliveryPhone:   in.DeliveryPhone,
			Governorate:     in.Governorate,
			PickupLocation:  in.PickupLocation,
			EWalletType:     in.EWalletType,
			Notes:           in.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		o.OrderNumber = orderNumber(o.ID, now)
		for _, l := range lines {
			p := products[l.ProductID]
			o.Items = append(o.Items, orders.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				Price:       p.Price,
				Source:      p.Source,
			})
		}

		t, err := priceOrder(o.Items, in, s.fee)
		if err != nil {
			return err
		}
		o.TotalAmount, o.DeliveryFee, o.FinalAmount = t.total, t.fee, t.final
		o.DownPayment, o.RemainingAmount = t.down, t.remaining
		o.InstallmentPlan = installmentPlan(o.ID, o.PaymentMethod, t, in.InterestRate, now)

		if err := tx.InsertOrder(ctx, &o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, it := range o.Items {
			if _, err := s.inventory.DeductTx(ctx, tx, it.ProductID, it.Quantity, o.ID); err != nil {
				return err
			}
		}
		if err := tx.InsertNotification(ctx, &orders.VendorNotification{
			ID:        uuid.NewString(),
			VendorID:  o.VendorID,
			Type:      orders.NotificationNewOrder,
			Title:     "New order " + o.OrderNumber,
			Message:   fmt.Sprintf("%s ordered %d item(s), total %s", customer.Name, len(o.Items), o.FinalAmount.StringFixed(2)),
			OrderID:   o.ID,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		o.Customer = &customer
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// checkLines reports the first missing product, then the first short one, before any write.
func checkLines(lines []LineInput, products map[string]orders.Product) error {
	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			return &orders.ProductNotFoundError{ProductID: l.ProductID}
		}
	}
	vendor := products[lines[0].ProductID].VendorID
	for _, l := range lines {
		p := products[l.ProductID]
		if p.VendorID != vendor {
			return fmt.Errorf("%w: %s belongs to %s, %s to %s", orders.ErrMixedVendorCart,
				lines[0].ProductID, vendor, p.ID, p.VendorID)
		}
		if p.Stock < l.Quantity {
			return &orders.OutOfStockError{ProductID: p.ID, Requested: l.Quantity, Available: p.Stock}
		}
	}
	return nil
}

// orderNumberAttempts bounds regeneration when the UNIQUE order_number index rejects an insert.
const orderNumberAttempts = 3

// orderNumber carries 48 bits of the order uuid after the date.
func orderNumber(id string, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id, "-", "")[:12])
	return "ORD-" + at.Format("20060102") + "-" + short
}
