package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestEmitWritesEnvelopeRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          map[string]string{"invoiceNumber": "INV-AB12C"},
			Version:       1,
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.EventType != enums.EventOrderSettled {
		t.Fatalf("event type = %s", row.EventType)
	}
	if row.AggregateID != orderID {
		t.Fatalf("aggregate id = %s", row.AggregateID)
	}
	if row.PublishedAt != nil {
		t.Fatal("new event should be unpublished")
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventID == "" {
		t.Fatal("envelope missing event id")
	}
	if envelope.Version != 1 {
		t.Fatalf("envelope version = %d", envelope.Version)
	}
	var data map[string]string
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["invoiceNumber"] != "INV-AB12C" {
		t.Fatalf("data = %v", data)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(newTestDB(t)), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventOrderSettled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestFetchUnpublishedOrdersAndFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderSettled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   ids[i],
			})
		})
		if err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}

	rows, err := repo.FetchUnpublished(10, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if err := repo.MarkPublished(rows[0].ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	rows, err = repo.FetchUnpublished(10, 0)
	if err != nil {
		t.Fatalf("fetch after publish: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 unpublished rows, got %d", len(rows))
	}
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := repo.MarkFailed(row.ID, errors.New("smtp timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(row.ID, errors.New("smtp timeout")); err != nil {
		t.Fatalf("mark failed again: %v", err)
	}

	if err := db.First(&row, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", row.AttemptCount)
	}
	if row.LastError == nil || *row.LastError != "smtp timeout" {
		t.Fatalf("last error = %v", row.LastError)
	}

	rows, err := repo.FetchUnpublished(10, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("exhausted event should be skipped, got %d rows", len(rows))
	}
}
