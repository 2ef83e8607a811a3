package fulfillment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/capital"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
)

type InspectionInput struct {
	Result          orders.InspectionResult
	RejectionReason string
}

const (
	notesRejected  = "rejected order"
	notesCancelled = "cancelled order"
)

// ConfirmOrder moves a pending order to CONFIRMED.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (orders.Order, error) {
	o, err := s.mutate(ctx, orderID, func(tx orders.Tx, o *orders.Order) error {
		if err := orders.Transition(o.ID, o.Status, orders.StatusConfirmed); err != nil {
			return err
		}
		o.Status = orders.StatusConfirmed
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.emitStatus(ctx, o)
	return o, nil
}

// AssignDeliveryStaff hands the order to a courier. Reassigning an order already out for
// delivery is allowed and re-sends the brief.
func (s *Service) AssignDeliveryStaff(ctx context.Context, orderID, staffID string) (orders.Order, error) {
	if staffID == "" {
		return orders.Order{}, orders.InvalidInput("staff id is required")
	}
	var staff orders.DeliveryStaff
	o, err := s.mutate(ctx, orderID, func(tx orders.Tx, o *orders.Order) error {
		if err := orders.Transition(o.ID, o.Status, orders.StatusOutForDelivery); err != nil {
			return err
		}
		var err error
		if staff, err = tx.GetStaff(ctx, staffID); err != nil {
			return err
		}
		o.Status = orders.StatusOutForDelivery
		o.DeliveryStaffID = staff.ID
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.log.Info("delivery staff assigned", zap.String("order_id", o.ID), zap.String("staff_id", staff.ID))
	s.emitStatus(ctx, o)
	if s.dispatcher != nil {
		if err := s.dispatcher.NotifyStaff(ctx, o, staff); err != nil {
			s.sideEffectFailed("staff", o.ID, err)
		}
	}
	return o, nil
}

// UpdateOrderStatus settles an order out for delivery. ACCEPTED books consignment payables and
// profit; REJECTED restocks every line and leaves only the delivery fee due.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, in InspectionInput) (orders.Order, error) {
	if in.Result != orders.InspectionAccepted && in.Result != orders.InspectionRejected {
		return orders.Order{}, orders.InvalidInput("unknown inspection result %q", in.Result)
	}

	// vendor dibaca dulu di luar tx supaya lock diambil sebelum transaksi dibuka
	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	target := orders.StatusDelivered
	if in.Result == orders.InspectionRejected {
		target = orders.StatusRejected
	}
	// order yang sudah selesai tidak perlu antri lock vendor
	if current.Status.IsTerminal() {
		return orders.Order{}, &orders.InvalidTransitionError{OrderID: current.ID, From: current.Status, To: target}
	}
	unlock, err := s.locker.Lock(ctx, "vendor:"+current.VendorID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("lock vendor %s: %w", current.VendorID, err)
	}
	defer unlock()

	var restocked int
	o, err := s.mutate(ctx, orderID, func(tx orders.Tx, o *orders.Order) error {
		switch in.Result {
		case orders.InspectionAccepted:
			if err := orders.Transition(o.ID, o.Status, target); err != nil {
				return err
			}
			if err := s.settle(ctx, tx, *o); err != nil {
				return err
			}
			at := s.now()
			o.Status = orders.StatusDelivered
			o.PaymentStatus = orders.PaymentPaid
			o.DeliveredAt = &at
		case orders.InspectionRejected:
			if err := orders.Transition(o.ID, o.Status, target); err != nil {
				return err
			}
			if err := s.restock(ctx, tx, *o, notesRejected); err != nil {
				return err
			}
			restocked = len(o.Items)
			o.Status = orders.StatusRejected
			o.PaymentStatus = orders.PaymentDeliveryFeeOnly
			o.FinalAmount = o.DeliveryFee
			o.RemainingAmount = decimal.NullDecimal{}
			o.RejectionReason = in.RejectionReason
		}
		o.InspectionResult = in.Result
		if o.DeliveryStaffID != "" {
			if err := tx.IncrementStaffDeliveries(ctx, o.DeliveryStaffID, in.Result == orders.InspectionAccepted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	for i := 0; i < restocked; i++ {
		s.metrics.StockMoved(string(orders.ChangeReversal))
	}
	s.log.Info("order settled",
		zap.String("order_id", o.ID),
		zap.String("result", string(in.Result)),
		zap.String("final_amount", o.FinalAmount.StringFixed(2)),
	)
	s.emitStatus(ctx, o)
	return o, nil
}

// CancelOrder restocks an order that has not left the store.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (orders.Order, error) {
	o, err := s.mutate(ctx, orderID, func(tx orders.Tx, o *orders.Order) error {
		if err := orders.Transition(o.ID, o.Status, orders.StatusCancelled); err != nil {
			return err
		}
		if err := s.restock(ctx, tx, *o, notesCancelled); err != nil {
			return err
		}
		o.Status = orders.StatusCancelled
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	for range o.Items {
		s.metrics.StockMoved(string(orders.ChangeReversal))
	}
	s.log.Info("order cancelled", zap.String("order_id", o.ID))
	s.emitStatus(ctx, o)
	return o, nil
}

// mutate locks the order row, lets fn change it, and writes it back in the same transaction,
// so the state fn checked is the state it replaces.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(orders.Tx, *orders.Order) error) (orders.Order, error) {
	var out orders.Order
	err := s.store.WithTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(tx, &o); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return out, err
}

func (s *Service) restock(ctx context.Context, tx orders.Tx, o orders.Order, notes string) error {
	for _, it := range o.Items {
		if _, err := s.inventory.ReverseTx(ctx, tx, it.ProductID, it.Quantity, o.ID, notes); err != nil {
			return fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// settle books what an accepted order owes suppliers. Owned lines need no entry: their cost
// was debited when the stock was purchased.
func (s *Service) settle(ctx context.Context, tx orders.Tx, o orders.Order) error {
	for _, it := range o.Items {
		switch src := it.Source.(type) {
		case orders.Owned:
		case orders.Consignment:
			due, profit := capital.ConsignmentSplit(it, src)
			if _, err := s.capital.CreateSupplierPayment(ctx, tx, capital.SupplierPaymentInput{
				VendorID:      o.VendorID,
				ProductID:     it.ProductID,
				OrderID:       o.ID,
				SupplierName:  src.SupplierName,
				SupplierPhone: src.SupplierPhone,
				Quantity:      it.Quantity,
				AmountDue:     due,
				Profit:        profit,
			}); err != nil {
				return err
			}
			if _, err := s.capital.RecordConsignmentProfit(ctx, tx, o.VendorID, o.ID, profit); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: line %s has %T", orders.ErrUnknownProductSource, it.ID, it.Source)
		}
	}
	return nil
}
