package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics is the checkout instrumentation. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	salesCommitted   *prometheus.CounterVec
	revenue          *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	returnedUnits    prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		salesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "sales_committed_total",
			Help:      "Sales committed, by payment method.",
		}, []string{"payment_method"}),
		revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "sales_revenue_total",
			Help:      "Sum of committed sale totals, by payment method.",
		}, []string{"payment_method"}),
		checkoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "checkout_failures_total",
			Help:      "Rejected checkouts, by error kind.",
		}, []string{"kind"}),
		returnedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "returned_units_total",
			Help:      "Units accepted back through returns.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.salesCommitted,
		m.revenue,
		m.checkoutFailures,
		m.returnedUnits,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterSessions exposes the live session count read from fn at scrape time.
func (m *Metrics) RegisterSessions(fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pdv",
		Name:      "active_sessions",
		Help:      "Open checkout sessions.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) SaleCommitted(method string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.salesCommitted.WithLabelValues(method).Inc()
	m.revenue.WithLabelValues(method).Add(total.InexactFloat64())
}

func (m *Metrics) CheckoutFailed(kind string) {
	if m == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) UnitsReturned(qty int) {
	if m == nil || qty <= 0 {
		return
	}
	m.returnedUnits.Add(float64(qty))
}

// InstrumentHandler counts requests served by next.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return promhttp.InstrumentHandlerCounter(m.httpRequests, next)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
