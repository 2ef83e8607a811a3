package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated     *prometheus.CounterVec
	OrderTransitions  *prometheus.CounterVec
	StockRejections   prometheus.Counter
	StockMovements    *prometheus.CounterVec
	LedgerAppends     *prometheus.CounterVec
	LedgerRetries     prometheus.Counter
	SideEffectFailure *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created, by payment and delivery method",
		}, []string{"payment_method", "delivery_method"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions, by target status",
		}, []string{"status"}),
		StockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_stock_rejections_total",
			Help:      "Orders refused because of insufficient stock",
		}),
		StockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_movements_total",
			Help:      "Inventory log entries written, by change type",
		}, []string{"change_type"}),
		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capital_ledger_appends_total",
			Help:      "Capital ledger entries appended, by type",
		}, []string{"type"}),
		LedgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capital_ledger_retries_total",
			Help:      "Ledger appends retried after a head conflict",
		}),
		SideEffectFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed, by channel",
		}, []string{"channel"}),
	}

	registry.MustRegister(
		m.OrdersCreated,
		m.OrderTransitions,
		m.StockRejections,
		m.StockMovements,
		m.LedgerAppends,
		m.LedgerRetries,
		m.SideEffectFailure,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated(paymentMethod, deliveryMethod string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(paymentMethod, deliveryMethod).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.StockRejections.Inc()
}

func (m *Metrics) StockMoved(changeType string) {
	if m == nil {
		return
	}
	m.StockMovements.WithLabelValues(changeType).Inc()
}

func (m *Metrics) LedgerAppended(txType string) {
	if m == nil {
		return
	}
	m.LedgerAppends.WithLabelValues(txType).Inc()
}

func (m *Metrics) LedgerRetried() {
	if m == nil {
		return
	}
	m.LedgerRetries.Inc()
}

func (m *Metrics) SideEffectFailed(channel string) {
	if m == nil {
		return
	}
	m.SideEffectFailure.WithLabelValues(channel).Inc()
}
