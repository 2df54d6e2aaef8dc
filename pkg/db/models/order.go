package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopvibe/shopvibe-backend/pkg/enums"
)

// Order is the durable settlement record. Orders are created once, their
// line items are frozen at creation, and lifecycle transitions only ever move
// forward. Rows are never deleted.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber string              `gorm:"column:invoice_number;uniqueIndex:ux_orders_invoice_number;not null"`
	CustomerName  string              `gorm:"column:customer_name;not null"`
	CustomerEmail string              `gorm:"column:customer_email;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null"`

	// ShippingAddress is stored verbatim; the core never interprets it.
	ShippingAddress json.RawMessage `gorm:"column:shipping_address;type:jsonb;serializer:json"`

	ItemsTotal    decimal.Decimal `gorm:"column:items_total;type:numeric(12,2);not null"`
	TaxTotal      decimal.Decimal `gorm:"column:tax_total;type:numeric(12,2);not null"`
	ShippingTotal decimal.Decimal `gorm:"column:shipping_total;type:numeric(12,2);not null"`
	GrandTotal    decimal.Decimal `gorm:"column:grand_total;type:numeric(12,2);not null"`

	IsPaid         bool            `gorm:"column:is_paid;not null;default:false"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
	PaymentReceipt json.RawMessage `gorm:"column:payment_receipt;type:jsonb;serializer:json"`

	IsDelivered bool       `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`

	IsCancelled bool       `gorm:"column:is_cancelled;not null;default:false"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	// StockConflictNote records the product that failed its conditional
	// decrement during settlement so an operator can reconcile. The order
	// stays paid; already-applied decrements are not rolled back.
	StockConflictNote *string `gorm:"column:stock_conflict_note"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// State derives the lifecycle state from the stored flags.
func (o Order) State() enums.OrderState {
	switch {
	case o.IsCancelled:
		return enums.OrderStateCancelled
	case o.IsDelivered:
		return enums.OrderStateDelivered
	case o.IsPaid:
		return enums.OrderStatePaid
	default:
		return enums.OrderStateCreated
	}
}
