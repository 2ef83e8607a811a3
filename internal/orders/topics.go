package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderLifecycle = "order.lifecycle"
	TopicDispatch       = "delivery.dispatch"
	TopicStaffNotify    = "delivery.staff.notify"
)

// TopicFor picks the topic an event type is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated:
		return TopicOrderCreated
	case EventDeliveryDispatch:
		return TopicDispatch
	case EventStaffNotification:
		return TopicStaffNotify
	default:
		return TopicOrderLifecycle
	}
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
