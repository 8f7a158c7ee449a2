// Package metrics exposes the Prometheus instruments of the order form.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons.
const (
	ReasonValidation = "validation"
	ReasonEmpty      = "empty"
	ReasonOutOfStock = "out_of_stock"
)

type Metrics struct {
	Quotes             *prometheus.CounterVec
	OrdersPlaced       prometheus.Counter
	OrdersRejected     *prometheus.CounterVec
	ReservationLatency prometheus.Histogram
	Restocks           *prometheus.CounterVec
	MailFailures       prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Quotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderform",
			Name:      "quotes_total",
			Help:      "Order form submissions by mode.",
		}, []string{"mode"}),
		OrdersPlaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orderform",
			Name:      "orders_placed_total",
			Help:      "Orders whose inventory was committed.",
		}),
		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderform",
			Name:      "orders_rejected_total",
			Help:      "Place order attempts that were turned down, by reason.",
		}, []string{"reason"}),
		ReservationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orderform",
			Name:      "reservation_duration_seconds",
			Help:      "Duration of the inventory reservation transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		Restocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderform",
			Name:      "restocks_total",
			Help:      "Processed stock.received messages by outcome.",
		}, []string{"outcome"}),
		MailFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "orderform",
			Name:      "mail_failures_total",
			Help:      "Confirmation mails that could not be sent.",
		}),
	}
}

// ObserveReservation records the time since start.
func (m *Metrics) ObserveReservation(start time.Time) {
	m.ReservationLatency.Observe(time.Since(start).Seconds())
}
