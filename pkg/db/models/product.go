package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row owning the live stock counter. The settlement
// core mutates StockQty only; every other field belongs to catalog CRUD.
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Brand     string          `gorm:"column:brand"`
	Category  string          `gorm:"column:category"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	StockQty  int             `gorm:"column:stock_qty;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
