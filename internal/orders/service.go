package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/shopvibe/shopvibe-backend/internal/inventory"
	"github.com/shopvibe/shopvibe-backend/internal/invoice"
	dbpkg "github.com/shopvibe/shopvibe-backend/pkg/db"
	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/enums"
	pkgerrors "github.com/shopvibe/shopvibe-backend/pkg/errors"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/metrics"
	"github.com/shopvibe/shopvibe-backend/pkg/outbox"
	"github.com/shopvibe/shopvibe-backend/pkg/pagination"
)

const maxInvoiceAttempts = 5

var (
	errSettleRace = errors.New("settlement race lost")
	errCancelRace = errors.New("cancellation race lost")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the order lifecycle engine: creation with stock pre-validation,
// settlement with atomic decrement, delivery marking, cancellation with
// restoration, and the invoice lookup resolver.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*OrderView, error)
	Settle(ctx context.Context, input SettleInput) (*OrderView, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*OrderView, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*OrderView, error)
	Lookup(ctx context.Context, token string) (*OrderView, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
}

type service struct {
	repo      Repository
	inventory inventory.Repository
	invoices  invoice.Generator
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
}

// NewService builds the lifecycle engine with its required dependencies.
// Logger and metrics are optional.
func NewService(
	repo Repository,
	inv inventory.Repository,
	invoices invoice.Generator,
	tx txRunner,
	publisher outboxPublisher,
	logg *logger.Logger,
	orderMetrics *metrics.OrderMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice generator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		inventory: inv,
		invoices:  invoices,
		tx:        tx,
		outbox:    publisher,
		logg:      logg,
		metrics:   orderMetrics,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*OrderView, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.inventory.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Advisory pre-check only. Stock is not reserved here; settlement does
	// the authoritative conditional decrement.
	items := make([]models.OrderLineItem, 0, len(input.Items))
	for _, item := range input.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		if item.Qty > product.StockQty {
			return nil, pkgerrors.New(pkgerrors.CodeStock, "insufficient stock").
				WithDetails(map[string]any{
					"productId": item.ProductID,
					"requested": item.Qty,
					"available": product.StockQty,
				})
		}
		items = append(items, models.OrderLineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Qty:       item.Qty,
		})
	}

	order := &models.Order{
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerEmail:   strings.TrimSpace(input.CustomerEmail),
		PaymentMethod:   input.PaymentMethod,
		ShippingAddress: input.ShippingAddress,
		ItemsTotal:      input.ItemsTotal,
		TaxTotal:        input.TaxTotal,
		ShippingTotal:   input.ShippingTotal,
		GrandTotal:      input.GrandTotal,
		Items:           items,
	}

	// Collisions in the 36^5 invoice space are vanishingly rare; the unique
	// index catches them and we regenerate.
	var created bool
	for attempt := 0; attempt < maxInvoiceAttempts; attempt++ {
		number, err := s.invoices.Generate()
		if err != nil {
			return nil, err
		}
		order.InvoiceNumber = number

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.repo.WithTx(tx).Create(ctx, order)
			return err
		})
		if err == nil {
			created = true
			break
		}
		if dbpkg.IsUniqueViolation(err, "ux_orders_invoice_number") {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}
	if !created {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice number allocation exhausted")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithInvoiceNumber(logCtx, order.InvoiceNumber)
		s.logg.Info(logCtx, "order created")
	}

	return s.reload(ctx, order.ID)
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*OrderView, error) {
	start := time.Now()
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.IsCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	if order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}

	var conflict *pkgerrors.Error
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv := s.inventory.WithTx(tx)

		applied, err := repo.ConditionalMarkPaid(ctx, order.ID, input.Receipt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark paid")
		}
		if !applied {
			return errSettleRace
		}

		// Decrements are independent per line item. A conflict on item k
		// leaves items 1..k-1 deducted; the order stays paid with the
		// conflict recorded for operator reconciliation.
		for _, item := range order.Items {
			ok, err := inv.ConditionalDecrement(ctx, item.ProductID, item.Qty)
			if err != nil {
				return err
			}
			if !ok {
				available := 0
				if product, perr := inv.FindProduct(ctx, item.ProductID); perr == nil {
					available = product.StockQty
				}
				conflict = pkgerrors.New(pkgerrors.CodeStock, "stock conflict during settlement").
					WithDetails(map[string]any{
						"productId": item.ProductID,
						"requested": item.Qty,
						"available": available,
					})
				note := fmt.Sprintf(
					"conditional decrement failed for product %s: requested %d, available %d",
					item.ProductID, item.Qty, available,
				)
				if err := repo.SetStockConflictNote(ctx, order.ID, note); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock conflict")
				}
				break
			}
			if err := repo.SetLineItemStockDeducted(ctx, item.ID, true); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag line item")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: SettledEvent{
				OrderID:       order.ID,
				InvoiceNumber: order.InvoiceNumber,
				CustomerEmail: order.CustomerEmail,
				GrandTotal:    order.GrandTotal.StringFixed(2),
				StockConflict: conflict != nil,
			},
		})
	})
	if errors.Is(err, errSettleRace) {
		current, lerr := s.loadOrder(ctx, order.ID)
		if lerr == nil && current.IsCancelled {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}
	if err != nil {
		s.metrics.ObserveSettlement("error", time.Since(start))
		return nil, err
	}

	if conflict != nil {
		s.metrics.IncStockConflict()
		s.metrics.ObserveSettlement("stock_conflict", time.Since(start))
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			s.logg.Warn(logCtx, "settlement hit stock conflict")
		}
		return nil, conflict
	}

	s.metrics.ObserveSettlement("settled", time.Since(start))
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithInvoiceNumber(logCtx, order.InvoiceNumber)
		s.logg.Info(logCtx, "order settled")
	}

	return s.reload(ctx, order.ID)
}

func (s *service) Deliver(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	if order.IsDelivered {
		// Admin actions are not exactly-once; re-marking is a no-op.
		view := viewFromModel(*order)
		return &view, nil
	}
	if !order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order not paid")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkDelivered(ctx, orderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark delivered")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: DeliveredEvent{
				OrderID:       order.ID,
				InvoiceNumber: order.InvoiceNumber,
				CustomerEmail: order.CustomerEmail,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "order delivered")
	}

	return s.reload(ctx, orderID)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already delivered")
	}
	if order.IsCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already cancelled")
	}

	restored := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv := s.inventory.WithTx(tx)

		applied, err := repo.ConditionalMarkCancelled(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cancelled")
		}
		if !applied {
			return errCancelRace
		}

		// Restore only what settlement actually deducted. An unpaid or
		// conflicted order must never inflate stock.
		var restoreErr error
		for _, item := range order.Items {
			if !item.StockDeducted {
				continue
			}
			if err := inv.Increment(ctx, item.ProductID, item.Qty); err != nil {
				restoreErr = multierr.Append(restoreErr, err)
				continue
			}
			if err := repo.SetLineItemStockDeducted(ctx, item.ID, false); err != nil {
				restoreErr = multierr.Append(restoreErr, err)
				continue
			}
			restored++
		}
		if restoreErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, restoreErr, "restore stock")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: CancelledEvent{
				OrderID:       order.ID,
				InvoiceNumber: order.InvoiceNumber,
				CustomerEmail: order.CustomerEmail,
				RestoredItems: restored,
			},
		})
	})
	if errors.Is(err, errCancelRace) {
		current, lerr := s.loadOrder(ctx, orderID)
		if lerr == nil && current.IsDelivered {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already delivered")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already cancelled")
	}
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "order cancelled")
	}

	return s.reload(ctx, orderID)
}

// Lookup resolves a caller token to one order using, in priority order:
// exact invoice number, case-insensitive order-id prefix (token length >= 6),
// exact order id. Prefix ties break on creation order, oldest first.
func (s *service) Lookup(ctx context.Context, token string) (*OrderView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lookup token required")
	}

	order, err := s.repo.FindByInvoiceNumber(ctx, invoice.Normalize(token))
	if err == nil {
		view := viewFromModel(*order)
		return &view, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup by invoice number")
	}

	if len(token) >= 6 {
		all, err := s.repo.FindAll(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan orders")
		}
		prefix := strings.ToLower(token)
		for _, candidate := range all {
			if strings.HasPrefix(strings.ToLower(candidate.ID.String()), prefix) {
				return s.reload(ctx, candidate.ID)
			}
		}
	}

	if id, perr := uuid.Parse(token); perr == nil {
		order, err := s.repo.FindByID(ctx, id)
		if err == nil {
			view := viewFromModel(*order)
			return &view, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup by id")
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.List(ctx, cursor, pagination.LimitWithBuffer(input.Limit), strings.TrimSpace(input.CustomerEmail))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	views := make([]OrderView, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewFromModel(row))
	}
	return &ListResult{Orders: views, NextCursor: next}, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	view := viewFromModel(*order)
	return &view, nil
}

func validateCreateInput(input CreateInput) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "line item product id required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	switch input.PaymentMethod {
	case enums.PaymentMethodCard, enums.PaymentMethodUPI, enums.PaymentMethodCOD:
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	return nil
}

func viewFromModel(order models.Order) OrderView {
	items := make([]LineItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemView{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Qty:           item.Qty,
			StockDeducted: item.StockDeducted,
		})
	}
	return OrderView{
		ID:                order.ID,
		InvoiceNumber:     order.InvoiceNumber,
		State:             order.State(),
		CustomerName:      order.CustomerName,
		CustomerEmail:     order.CustomerEmail,
		PaymentMethod:     order.PaymentMethod,
		ShippingAddress:   order.ShippingAddress,
		ItemsTotal:        order.ItemsTotal,
		TaxTotal:          order.TaxTotal,
		ShippingTotal:     order.ShippingTotal,
		GrandTotal:        order.GrandTotal,
		IsPaid:            order.IsPaid,
		PaidAt:            order.PaidAt,
		IsDelivered:       order.IsDelivered,
		DeliveredAt:       order.DeliveredAt,
		IsCancelled:       order.IsCancelled,
		CancelledAt:       order.CancelledAt,
		StockConflictNote: order.StockConflictNote,
		Items:             items,
		CreatedAt:         order.CreatedAt,
	}
}
