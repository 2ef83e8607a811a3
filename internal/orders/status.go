package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusRejected       Status = "REJECTED"
	StatusCancelled      Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusOutForDelivery: true, StatusCancelled: true},
	StatusConfirmed:      {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusOutForDelivery: true, StatusDelivered: true, StatusRejected: true}, // reassign staff
	StatusDelivered:      {},
	StatusRejected:       {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Transition returns an *InvalidTransitionError when from -> to is not allowed.
func Transition(orderID string, from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{OrderID: orderID, From: from, To: to}
	}
	return nil
}
