package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records settlement pipeline outcomes.
type OrderMetrics struct {
	settlementDuration *prometheus.HistogramVec
	settlements        *prometheus.CounterVec
	stockConflicts     prometheus.Counter
	notifications      *prometheus.CounterVec
	outboxLag          prometheus.Gauge
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	settlementDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_settlement_duration_seconds",
		Help:    "Duration of order settlement transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_settlements_total",
		Help: "Order settlement attempts by outcome.",
	}, []string{"outcome"})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_stock_conflicts_total",
		Help: "Settlements that hit an insufficient-stock conflict.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_notifications_total",
		Help: "Receipt notification deliveries by outcome.",
	}, []string{"outcome"})
	outboxLag := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_unpublished_events",
		Help: "Outbox events waiting to be published.",
	})
	reg.MustRegister(settlementDuration, settlements, stockConflicts, notifications, outboxLag)
	return &OrderMetrics{
		settlementDuration: settlementDuration,
		settlements:        settlements,
		stockConflicts:     stockConflicts,
		notifications:      notifications,
		outboxLag:          outboxLag,
	}
}

// ObserveSettlement records the duration and outcome of a settlement attempt.
func (m *OrderMetrics) ObserveSettlement(outcome string, duration time.Duration) {
	if m == nil || m.settlementDuration == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.settlementDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.settlements.WithLabelValues(label).Inc()
}

// IncStockConflict increments the stock conflict counter.
func (m *OrderMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncNotification increments the notification counter for the outcome.
func (m *OrderMetrics) IncNotification(outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetOutboxLag records the current unpublished outbox depth.
func (m *OrderMetrics) SetOutboxLag(depth int) {
	if m == nil || m.outboxLag == nil {
		return
	}
	m.outboxLag.Set(float64(depth))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
