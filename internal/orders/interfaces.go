package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/pagination"
)

// Repository persists orders and their line-item snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*models.Order, error)

	// FindAll returns every order in creation order (created_at, then id).
	// The lookup resolver's prefix scan depends on this ordering for its
	// first-match tie-break.
	FindAll(ctx context.Context) ([]models.Order, error)
	List(ctx context.Context, cursor *pagination.Cursor, limit int, customerEmail string) ([]models.Order, error)

	// ConditionalMarkPaid flips is_paid only when the order is still unpaid
	// and not cancelled. The guard and the write are a single statement so a
	// duplicate settlement callback can never double-settle.
	ConditionalMarkPaid(ctx context.Context, id uuid.UUID, receipt []byte) (bool, error)

	MarkDelivered(ctx context.Context, id uuid.UUID) error

	// ConditionalMarkCancelled flips is_cancelled only when the order is
	// neither cancelled nor delivered.
	ConditionalMarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)

	SetLineItemStockDeducted(ctx context.Context, itemID uuid.UUID, deducted bool) error
	SetStockConflictNote(ctx context.Context, id uuid.UUID, note string) error
}
