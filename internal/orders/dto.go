package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopvibe/shopvibe-backend/pkg/enums"
)

// CreateLineItemInput references a catalog product and the quantity wanted.
type CreateLineItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateInput carries everything needed to persist a new order. Totals are
// computed by the caller and stored verbatim.
type CreateInput struct {
	CustomerName    string
	CustomerEmail   string
	PaymentMethod   enums.PaymentMethod
	ShippingAddress json.RawMessage
	Items           []CreateLineItemInput

	ItemsTotal    decimal.Decimal
	TaxTotal      decimal.Decimal
	ShippingTotal decimal.Decimal
	GrandTotal    decimal.Decimal
}

// SettleInput identifies the order and carries the gateway receipt verbatim.
type SettleInput struct {
	OrderID uuid.UUID
	Receipt json.RawMessage
}

// ListInput carries cursor pagination parameters for the order list.
// CustomerEmail, when set, narrows the page to that customer's orders.
type ListInput struct {
	Limit         int
	Cursor        string
	CustomerEmail string
}

// ListResult is one page of orders plus the cursor for the next page.
type ListResult struct {
	Orders     []OrderView
	NextCursor string
}

// LineItemView is the read shape of a frozen line item.
type LineItemView struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     uuid.UUID       `json:"productId"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Qty           int             `json:"qty"`
	StockDeducted bool            `json:"stockDeducted"`
}

// OrderView is the read shape returned by every lifecycle operation.
type OrderView struct {
	ID              uuid.UUID           `json:"id"`
	InvoiceNumber   string              `json:"invoiceNumber"`
	State           enums.OrderState    `json:"state"`
	CustomerName    string              `json:"customerName"`
	CustomerEmail   string              `json:"customerEmail"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	ShippingAddress json.RawMessage     `json:"shippingAddress,omitempty"`

	ItemsTotal    decimal.Decimal `json:"itemsTotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	ShippingTotal decimal.Decimal `json:"shippingTotal"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`

	IsPaid      bool       `json:"isPaid"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	IsDelivered bool       `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	IsCancelled bool       `json:"isCancelled"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	StockConflictNote *string `json:"stockConflictNote,omitempty"`

	Items     []LineItemView `json:"items"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SettledEvent is the outbox payload for a completed settlement.
type SettledEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	CustomerEmail string    `json:"customerEmail"`
	GrandTotal    string    `json:"grandTotal"`
	StockConflict bool      `json:"stockConflict"`
}

// DeliveredEvent is the outbox payload for a delivery marking.
type DeliveredEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	CustomerEmail string    `json:"customerEmail"`
}

// CancelledEvent is the outbox payload for a cancellation.
type CancelledEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	CustomerEmail string    `json:"customerEmail"`
	RestoredItems int       `json:"restoredItems"`
}
