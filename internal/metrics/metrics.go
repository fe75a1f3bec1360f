// Package metrics prometheus метрики движения денег и заказов.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groph_market"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	ledgerOperations *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	gatewayRequests  *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec
	reconciled       *prometheus.CounterVec
}

// New создает метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ledgerOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Balance mutations by entry kind and result",
		}, []string{"kind", "result"}),
		orderTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order state machine transitions",
		}, []string{"from", "to"}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway API calls by operation and result",
		}, []string{"operation", "result"}),
		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway API call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_orders_total",
			Help:      "Orders handled by the reconciler by outcome",
		}, []string{"outcome"}),
	}
}

// NewNop метрики на отдельном реестре, который никто не собирает.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *Metrics) LedgerOperation(kind string, err error) {
	m.ledgerOperations.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) OrderTransition(from, to string) {
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) GatewayRequest(operation string, started time.Time, err error) {
	m.gatewayRequests.WithLabelValues(operation, result(err)).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Reconciled(outcome string) {
	m.reconciled.WithLabelValues(outcome).Inc()
}
