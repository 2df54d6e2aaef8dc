package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/enums"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/metrics"
	"github.com/shopvibe/shopvibe-backend/pkg/outbox"
)

type orderLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Dispatcher turns order lifecycle events into customer mail. Failures are
// returned to the worker for retry accounting; they never reach the
// lifecycle engine.
type Dispatcher struct {
	orders  orderLoader
	sender  Sender
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

// NewDispatcher wires the dispatcher dependencies. Logger and metrics are optional.
func NewDispatcher(orders orderLoader, sender Sender, logg *logger.Logger, orderMetrics *metrics.OrderMetrics) (*Dispatcher, error) {
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	return &Dispatcher{
		orders:  orders,
		sender:  sender,
		logg:    logg,
		metrics: orderMetrics,
	}, nil
}

// Dispatch handles one outbox event. A nil return means the event is done
// (delivered, or a poison message not worth retrying).
func (d *Dispatcher) Dispatch(ctx context.Context, event models.OutboxEvent) error {
	logCtx := ctx
	if d.logg != nil {
		logCtx = d.logg.WithFields(ctx, map[string]any{
			"event_type": event.EventType,
			"order_id":   event.AggregateID.String(),
		})
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		if d.logg != nil {
			d.logg.Error(logCtx, "dropping undecodable outbox payload", err)
		}
		return nil
	}

	subject, ok := subjectFor(event.EventType)
	if !ok {
		if d.logg != nil {
			d.logg.Info(logCtx, "skipping event with no mail template")
		}
		return nil
	}

	order, err := d.orders.FindByID(ctx, event.AggregateID)
	if err != nil {
		return fmt.Errorf("load order for notification: %w", err)
	}

	body := bodyFor(event.EventType, order)
	if err := d.sender.Send(ctx, order.CustomerEmail, fmt.Sprintf(subject, order.InvoiceNumber), body); err != nil {
		d.metrics.IncNotification("failed")
		if d.logg != nil {
			d.logg.Error(logCtx, "receipt delivery failed", err)
		}
		return err
	}

	d.metrics.IncNotification("sent")
	if d.logg != nil {
		d.logg.Info(logCtx, "receipt delivered")
	}
	return nil
}

func subjectFor(eventType enums.OutboxEventType) (string, bool) {
	switch eventType {
	case enums.EventOrderSettled:
		return "Your ShopVibe receipt for order %s", true
	case enums.EventOrderDelivered:
		return "Your ShopVibe order %s has been delivered", true
	case enums.EventOrderCancelled:
		return "Your ShopVibe order %s was cancelled", true
	default:
		return "", false
	}
}

func bodyFor(eventType enums.OutboxEventType, order *models.Order) string {
	switch eventType {
	case enums.EventOrderSettled:
		return RenderReceipt(order)
	case enums.EventOrderDelivered:
		return fmt.Sprintf(
			"Hi %s,\n\nYour order %s has been delivered.\n\nThank you.\n",
			order.CustomerName, order.InvoiceNumber,
		)
	case enums.EventOrderCancelled:
		return fmt.Sprintf(
			"Hi %s,\n\nYour order %s has been cancelled. Any deducted stock has been restored and a refund will follow if payment was captured.\n\nThank you.\n",
			order.CustomerName, order.InvoiceNumber,
		)
	default:
		return ""
	}
}
