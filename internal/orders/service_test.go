package orders

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shopvibe/shopvibe-backend/internal/inventory"
	"github.com/shopvibe/shopvibe-backend/internal/invoice"
	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/enums"
	pkgerrors "github.com/shopvibe/shopvibe-backend/pkg/errors"
	"github.com/shopvibe/shopvibe-backend/pkg/outbox"
	"github.com/shopvibe/shopvibe-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type harness struct {
	db        *gorm.DB
	svc       Service
	orders    Repository
	inventory inventory.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	ordersRepo := NewRepository(db)
	inventoryRepo := inventory.NewRepository(db)
	publisher := outbox.NewService(outbox.NewRepository(db), nil)

	svc, err := NewService(
		ordersRepo,
		inventoryRepo,
		invoice.NewGenerator(),
		gormTxRunner{db: db},
		publisher,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harness{db: db, svc: svc, orders: ordersRepo, inventory: inventoryRepo}
}

func (h *harness) seedProduct(t *testing.T, name string, price string, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	row := models.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		StockQty: stock,
	}
	if err := h.db.Create(&row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func (h *harness) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	product, err := h.inventory.FindProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return product.StockQty
}

func (h *harness) createOrder(t *testing.T, items ...CreateLineItemInput) *OrderView {
	t.Helper()
	view, err := h.svc.Create(context.Background(), CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         items,
		GrandTotal:    decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return view
}

func (h *harness) outboxEvents(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	if err := h.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	return rows
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected coded error %s, got %v", code, err)
	}
	if typed.Code() != code {
		t.Fatalf("code = %s, want %s (err: %v)", typed.Code(), code, err)
	}
	return typed
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: uuid.New(), Qty: 0}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, CreateInput{
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: uuid.New(), Qty: 1}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: "cheque",
		Items:         []CreateLineItemInput{{ProductID: uuid.New(), Qty: 1}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateUnknownProduct(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Create(context.Background(), CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: uuid.New(), Qty: 1}},
	})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestCreatePreCheckRefusesInsufficientStock(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 2)

	_, err := h.svc.Create(context.Background(), CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: productID, Qty: 3}},
	})
	typed := assertCode(t, err, pkgerrors.CodeStock)
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	if details["requested"] != 3 || details["available"] != 2 {
		t.Fatalf("details = %v", details)
	}
	// Pre-check is read-only.
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}
}

func TestCreateSnapshotsAndAllocatesInvoice(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)

	view := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 2})

	if !invoice.IsWellFormed(view.InvoiceNumber) {
		t.Fatalf("invoice number %q malformed", view.InvoiceNumber)
	}
	if view.State != enums.OrderStateCreated {
		t.Fatalf("state = %s", view.State)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(view.Items))
	}
	item := view.Items[0]
	if item.Name != "hoodie" || !item.UnitPrice.Equal(decimal.RequireFromString("49.00")) {
		t.Fatalf("snapshot item = %+v", item)
	}
	if item.StockDeducted {
		t.Fatal("creation must not deduct stock")
	}
	if got := h.stockOf(t, productID); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
}

type sequenceGenerator struct {
	numbers []string
	idx     int
}

func (g *sequenceGenerator) Generate() (string, error) {
	number := g.numbers[g.idx]
	if g.idx < len(g.numbers)-1 {
		g.idx++
	}
	return number, nil
}

func TestCreateRegeneratesInvoiceOnCollision(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 10)

	gen := &sequenceGenerator{numbers: []string{"INV-DUP01", "INV-DUP01", "INV-FRESH"}}
	svc, err := NewService(
		h.orders, h.inventory, gen,
		gormTxRunner{db: h.db},
		outbox.NewService(outbox.NewRepository(h.db), nil),
		nil, nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	first, err := svc.Create(context.Background(), CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.InvoiceNumber != "INV-DUP01" {
		t.Fatalf("first invoice = %s", first.InvoiceNumber)
	}

	second, err := svc.Create(context.Background(), CreateInput{
		CustomerName:  "Priya",
		CustomerEmail: "priya@example.com",
		PaymentMethod: enums.PaymentMethodCard,
		Items:         []CreateLineItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.InvoiceNumber != "INV-FRESH" {
		t.Fatalf("second invoice = %s, want regenerated", second.InvoiceNumber)
	}
}

func TestSettleDecrementsOnce(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 3})
	receipt := json.RawMessage(`{"txn":"pay_123"}`)

	settled, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID, Receipt: receipt})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.State != enums.OrderStatePaid || settled.PaidAt == nil {
		t.Fatalf("settled view = %+v", settled)
	}
	if !settled.Items[0].StockDeducted {
		t.Fatal("line item not flagged as deducted")
	}
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}

	// Duplicate callback.
	_, err = h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID, Receipt: receipt})
	assertCode(t, err, pkgerrors.CodeConflict)
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock after duplicate = %d, want 2", got)
	}

	events := h.outboxEvents(t)
	if len(events) != 1 || events[0].EventType != enums.EventOrderSettled {
		t.Fatalf("outbox events = %+v", events)
	}
}

func TestSettleUnknownOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Settle(context.Background(), SettleInput{OrderID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestSettleStockFiveScenario(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)

	orderA := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 3})
	orderB := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 4})

	if _, err := h.svc.Settle(context.Background(), SettleInput{OrderID: orderA.ID}); err != nil {
		t.Fatalf("settle A: %v", err)
	}
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock after A = %d, want 2", got)
	}

	_, err := h.svc.Settle(context.Background(), SettleInput{OrderID: orderB.ID})
	typed := assertCode(t, err, pkgerrors.CodeStock)
	details := typed.Details().(map[string]any)
	if details["requested"] != 4 || details["available"] != 2 {
		t.Fatalf("conflict details = %v", details)
	}
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock after B = %d, want 2", got)
	}

	// B is paid with the conflict recorded, not rolled back.
	loaded, err := h.orders.FindByID(context.Background(), orderB.ID)
	if err != nil {
		t.Fatalf("reload B: %v", err)
	}
	if !loaded.IsPaid {
		t.Fatal("conflicted order should remain paid")
	}
	if loaded.StockConflictNote == nil || !strings.Contains(*loaded.StockConflictNote, productID.String()) {
		t.Fatalf("conflict note = %v", loaded.StockConflictNote)
	}
	if loaded.Items[0].StockDeducted {
		t.Fatal("failed decrement must not flag the item")
	}
}

func TestSettlePartialDecrementVisible(t *testing.T) {
	h := newHarness(t)
	inStock := h.seedProduct(t, "hoodie", "49.00", 5)
	drained := h.seedProduct(t, "cap", "19.00", 1)

	order := h.createOrder(t,
		CreateLineItemInput{ProductID: inStock, Qty: 2},
		CreateLineItemInput{ProductID: drained, Qty: 1},
	)

	// Another order drains the second product between creation and settlement.
	rival := h.createOrder(t, CreateLineItemInput{ProductID: drained, Qty: 1})
	if _, err := h.svc.Settle(context.Background(), SettleInput{OrderID: rival.ID}); err != nil {
		t.Fatalf("settle rival: %v", err)
	}

	_, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeStock)

	// First item's decrement stays applied and visible.
	if got := h.stockOf(t, inStock); got != 3 {
		t.Fatalf("in-stock product = %d, want 3", got)
	}
	if got := h.stockOf(t, drained); got != 0 {
		t.Fatalf("drained product = %d, want 0", got)
	}

	loaded, err := h.orders.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded.IsPaid || loaded.StockConflictNote == nil {
		t.Fatal("order should be paid with conflict note")
	}
	if !loaded.Items[0].StockDeducted || loaded.Items[1].StockDeducted {
		t.Fatalf("deducted flags = %v, %v", loaded.Items[0].StockDeducted, loaded.Items[1].StockDeducted)
	}
}

func TestSettleCancelledOrder(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})

	if _, err := h.svc.Cancel(context.Background(), order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if got := h.stockOf(t, productID); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
}

func TestCancelUnpaidLeavesStock(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 3})

	cancelled, err := h.svc.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != enums.OrderStateCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled view = %+v", cancelled)
	}
	if got := h.stockOf(t, productID); got != 5 {
		t.Fatalf("stock = %d, want 5 (never deducted, never restored)", got)
	}
}

func TestCancelPaidRestoresExactly(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 3})

	if _, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := h.stockOf(t, productID); got != 2 {
		t.Fatalf("stock after settle = %d", got)
	}

	if _, err := h.svc.Cancel(context.Background(), order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.stockOf(t, productID); got != 5 {
		t.Fatalf("stock after cancel = %d, want 5", got)
	}

	// Second cancel is refused and must not restore again.
	_, err := h.svc.Cancel(context.Background(), order.ID)
	assertCode(t, err, pkgerrors.CodeConflict)
	if got := h.stockOf(t, productID); got != 5 {
		t.Fatalf("stock after duplicate cancel = %d, want 5", got)
	}
}

func TestCancelDeliveredFails(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 2})

	if _, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := h.svc.Deliver(context.Background(), order.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	_, err := h.svc.Cancel(context.Background(), order.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if got := h.stockOf(t, productID); got != 3 {
		t.Fatalf("stock = %d, want 3 (unchanged)", got)
	}
}

func TestDeliverLifecycle(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})

	// Created -> Delivered is not a legal transition.
	_, err := h.svc.Deliver(context.Background(), order.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)

	if _, err := h.svc.Settle(context.Background(), SettleInput{OrderID: order.ID}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	first, err := h.svc.Deliver(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if first.State != enums.OrderStateDelivered || first.DeliveredAt == nil {
		t.Fatalf("delivered view = %+v", first)
	}

	// Idempotent re-mark.
	second, err := h.svc.Deliver(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("second deliver: %v", err)
	}
	if second.State != enums.OrderStateDelivered {
		t.Fatalf("second state = %s", second.State)
	}
}

func TestLookupResolver(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 5)
	order := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})
	ctx := context.Background()

	byInvoice, err := h.svc.Lookup(ctx, order.InvoiceNumber)
	if err != nil {
		t.Fatalf("lookup by invoice: %v", err)
	}
	if byInvoice.ID != order.ID {
		t.Fatalf("invoice lookup returned %s", byInvoice.ID)
	}

	// Invoice match is case-insensitive via normalization.
	byLower, err := h.svc.Lookup(ctx, strings.ToLower(order.InvoiceNumber))
	if err != nil || byLower.ID != order.ID {
		t.Fatalf("lowercase invoice lookup: %v", err)
	}

	prefix := order.ID.String()[:6]
	byPrefix, err := h.svc.Lookup(ctx, prefix)
	if err != nil {
		t.Fatalf("lookup by prefix: %v", err)
	}
	if byPrefix.ID != order.ID {
		t.Fatalf("prefix lookup returned %s", byPrefix.ID)
	}

	byID, err := h.svc.Lookup(ctx, order.ID.String())
	if err != nil || byID.ID != order.ID {
		t.Fatalf("id lookup: %v", err)
	}

	_, err = h.svc.Lookup(ctx, "INV-NOPE0")
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.Lookup(ctx, "  ")
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestLookupPrefixTieBreaksOldestFirst(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 50)

	// Two orders sharing a forced id prefix; the older one wins.
	shared := "deadbe"
	older := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})
	newer := h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})
	for i, id := range []uuid.UUID{older.ID, newer.ID} {
		forced, err := uuid.Parse(shared + "0" + string(rune('0'+i)) + "-0000-4000-8000-000000000000")
		if err != nil {
			t.Fatalf("build id: %v", err)
		}
		res := h.db.Exec("UPDATE orders SET id = ? WHERE id = ?", forced, id)
		if res.Error != nil {
			t.Fatalf("force id: %v", res.Error)
		}
		h.db.Exec("UPDATE order_line_items SET order_id = ? WHERE order_id = ?", forced, id)
	}

	found, err := h.svc.Lookup(context.Background(), shared)
	if err != nil {
		t.Fatalf("prefix lookup: %v", err)
	}
	want := shared + "00-0000-4000-8000-000000000000"
	if found.ID.String() != want {
		t.Fatalf("tie-break returned %s, want %s", found.ID, want)
	}
}

func TestListPagesNewestFirst(t *testing.T) {
	h := newHarness(t)
	productID := h.seedProduct(t, "hoodie", "49.00", 50)
	for i := 0; i < 3; i++ {
		h.createOrder(t, CreateLineItemInput{ProductID: productID, Qty: 1})
	}

	page, err := h.svc.List(context.Background(), ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Orders) != 2 || page.NextCursor == "" {
		t.Fatalf("page = %d orders, cursor %q", len(page.Orders), page.NextCursor)
	}

	rest, err := h.svc.List(context.Background(), ListInput{Limit: 2, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Orders) != 1 || rest.NextCursor != "" {
		t.Fatalf("rest = %d orders, cursor %q", len(rest.Orders), rest.NextCursor)
	}

	_, err = h.svc.List(context.Background(), ListInput{Cursor: "garbage!!"})
	assertCode(t, err, pkgerrors.CodeValidation)
}

// --- concurrency property ----------------------------------------------------

type memState struct {
	mu     sync.Mutex
	stock  map[uuid.UUID]int
	orders map[uuid.UUID]*models.Order
}

type memInventory struct {
	state *memState
}

func (m *memInventory) WithTx(tx *gorm.DB) inventory.Repository { return m }

func (m *memInventory) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	qty, ok := m.state.stock[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Product{ID: id, StockQty: qty}, nil
}

func (m *memInventory) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if qty, ok := m.state.stock[id]; ok {
			out = append(out, models.Product{ID: id, StockQty: qty})
		}
	}
	return out, nil
}

func (m *memInventory) ConditionalDecrement(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if m.state.stock[productID] < qty {
		return false, nil
	}
	m.state.stock[productID] -= qty
	return true, nil
}

func (m *memInventory) Increment(ctx context.Context, productID uuid.UUID, qty int) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.stock[productID] += qty
	return nil
}

type memOrders struct {
	state *memState
}

func (m *memOrders) WithTx(tx *gorm.DB) Repository { return m }

func (m *memOrders) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	clone := *order
	m.state.orders[order.ID] = &clone
	return order, nil
}

func (m *memOrders) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	order, ok := m.state.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *order
	clone.Items = append([]models.OrderLineItem(nil), order.Items...)
	return &clone, nil
}

func (m *memOrders) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrders) FindAll(ctx context.Context) ([]models.Order, error) { return nil, nil }

func (m *memOrders) List(ctx context.Context, cursor *pagination.Cursor, limit int, customerEmail string) ([]models.Order, error) {
	return nil, nil
}

func (m *memOrders) ConditionalMarkPaid(ctx context.Context, id uuid.UUID, receipt []byte) (bool, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	order, ok := m.state.orders[id]
	if !ok || order.IsPaid || order.IsCancelled {
		return false, nil
	}
	order.IsPaid = true
	return true, nil
}

func (m *memOrders) MarkDelivered(ctx context.Context, id uuid.UUID) error { return nil }

func (m *memOrders) ConditionalMarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (m *memOrders) SetLineItemStockDeducted(ctx context.Context, itemID uuid.UUID, deducted bool) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, order := range m.state.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				order.Items[i].StockDeducted = deducted
				return nil
			}
		}
	}
	return nil
}

func (m *memOrders) SetStockConflictNote(ctx context.Context, id uuid.UUID, note string) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if order, ok := m.state.orders[id]; ok {
		order.StockConflictNote = &note
	}
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type noopPublisher struct{}

func (noopPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return nil
}

func TestConcurrentSettlementsNeverOversell(t *testing.T) {
	state := &memState{
		stock:  map[uuid.UUID]int{},
		orders: map[uuid.UUID]*models.Order{},
	}
	productID := uuid.New()
	const initialStock = 10
	const orderQty = 3
	const orderCount = 5 // 5*3 = 15 requested > 10 available
	state.stock[productID] = initialStock

	repo := &memOrders{state: state}
	inv := &memInventory{state: state}
	svc, err := NewService(repo, inv, invoice.NewGenerator(), passthroughTx{}, noopPublisher{}, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	orderIDs := make([]uuid.UUID, orderCount)
	for i := range orderIDs {
		view, err := svc.Create(context.Background(), CreateInput{
			CustomerName:  "Priya",
			CustomerEmail: "priya@example.com",
			PaymentMethod: enums.PaymentMethodCard,
			Items:         []CreateLineItemInput{{ProductID: productID, Qty: orderQty}},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		orderIDs[i] = view.ID
	}

	var wg sync.WaitGroup
	results := make([]error, orderCount)
	for i := range orderIDs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), SettleInput{OrderID: orderIDs[idx]})
			results[idx] = err
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeStock:
			conflicts++
		default:
			t.Fatalf("unexpected settlement error: %v", err)
		}
	}

	state.mu.Lock()
	final := state.stock[productID]
	state.mu.Unlock()

	if final < 0 {
		t.Fatalf("stock went negative: %d", final)
	}
	if successes*orderQty+final != initialStock {
		t.Fatalf("decrement accounting broken: %d successes, final stock %d", successes, final)
	}
	if conflicts == 0 {
		t.Fatal("expected at least one stock conflict")
	}
}
