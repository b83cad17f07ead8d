package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
)

// Metrics records calculation counters and latencies on its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	calculations *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	fees         *prometheus.CounterVec
}

var _ engine.Metrics = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epr",
			Name:      "calculations_total",
			Help:      "Fee calculation attempts by jurisdiction and outcome.",
		}, []string{"jurisdiction", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epr",
			Name:      "calculation_duration_seconds",
			Help:      "Time spent calculating, verifying, and storing a fee.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"jurisdiction"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epr",
			Name:      "fees_calculated_total",
			Help:      "Sum of rounded total fees from successful calculations.",
		}, []string{"jurisdiction"}),
	}
	m.registry.MustRegister(
		m.calculations,
		m.duration,
		m.fees,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCalculation implements engine.Metrics. The fee counter is a float
// approximation for dashboards; stored calculations stay exact.
func (m *Metrics) ObserveCalculation(jurisdiction engine.JurisdictionCode, outcome string, elapsed time.Duration, total decimal.Decimal) {
	j := string(jurisdiction)
	m.calculations.WithLabelValues(j, outcome).Inc()
	m.duration.WithLabelValues(j).Observe(elapsed.Seconds())
	if outcome == engine.OutcomeStored && total.IsPositive() {
		m.fees.WithLabelValues(j).Add(total.InexactFloat64())
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
