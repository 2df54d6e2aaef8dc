package idempotency

import (
	"context"
	"errors"
	"time"
)

// Store is the minimal key-value surface required for dedupe tracking.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager tracks processed outbox events so consumers stay idempotent
// across restarts and redeliveries.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed atomically records the event for the consumer and
// reports whether it had already been processed.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	if consumer == "" || eventID == "" {
		return false, errors.New("consumer and eventID are required")
	}
	key := m.processedKey(consumer, eventID)
	set, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete clears the processed marker, allowing a retry after a failed handling.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	if consumer == "" || eventID == "" {
		return errors.New("consumer and eventID are required")
	}
	return m.store.Del(ctx, m.processedKey(consumer, eventID))
}

func (m *Manager) processedKey(consumer, eventID string) string {
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID)
}
