package enums

// OutboxEventType enumerates the domain events emitted through the outbox.
type OutboxEventType string

const (
	EventOrderSettled   OutboxEventType = "order.settled"
	EventOrderDelivered OutboxEventType = "order.delivered"
	EventOrderCancelled OutboxEventType = "order.cancelled"
)

// OutboxAggregateType identifies the aggregate an event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)

// PaymentMethod is stored verbatim from the checkout request.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
	PaymentMethodCOD  PaymentMethod = "cod"
)

// OrderState is the derived lifecycle state of an order. It is never stored;
// it is computed from the paid/delivered/cancelled flags.
type OrderState string

const (
	OrderStateCreated   OrderState = "created"
	OrderStatePaid      OrderState = "paid"
	OrderStateDelivered OrderState = "delivered"
	OrderStateCancelled OrderState = "cancelled"
)
