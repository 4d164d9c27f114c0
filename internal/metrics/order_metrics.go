package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	ordersCreated  prometheus.Counter
	createFailures *prometheus.CounterVec
	createDuration prometheus.Histogram
	transitions    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	outboxEvents   prometheus.Counter
	stockConflicts prometheus.Counter
	ordersInFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре (для тестов: изолированный).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created from carts",
		}),
		createFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_create_failures_total",
			Help: "Total number of rejected order creations grouped by reason",
		}, []string{"reason"}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_notifications_total",
			Help: "Total number of order notification attempts grouped by result",
		}, []string{"kind", "result"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of order events written to outbox",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_reservation_rejections_total",
			Help: "Total number of orders rejected at stock reservation",
		}),
		ordersInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_order_creations_in_flight",
			Help: "Number of order creations currently in progress",
		}),
	}
}

// RecordCreateStarted отмечает начало оформления заказа.
func (m *OrderMetrics) RecordCreateStarted() {
	m.ordersInFlight.Inc()
}

// RecordCreateFinished отмечает завершение оформления и его длительность.
func (m *OrderMetrics) RecordCreateFinished(duration time.Duration) {
	m.ordersInFlight.Dec()
	m.createDuration.Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordCreateFailed учитывает отказ в оформлении.
func (m *OrderMetrics) RecordCreateFailed(reason string) {
	m.createFailures.WithLabelValues(reason).Inc()
}

// RecordStockRejection учитывает отказ атомарного списания остатков.
func (m *OrderMetrics) RecordStockRejection() {
	m.stockConflicts.Inc()
}

// RecordTransition учитывает применённую смену статуса.
func (m *OrderMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordNotification учитывает попытку отправки письма.
func (m *OrderMetrics) RecordNotification(kind string, sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
