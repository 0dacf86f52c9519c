package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"metar_parser/internal/metar"
)

// Metrics holds the Prometheus counters and histograms for report decoding.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesDropped  *prometheus.CounterVec // labels: reason={undecodable,unmatched}
	ReportsPublished prometheus.Counter

	ReportsDecoded *prometheus.CounterVec // labels: category={VFR,MVFR,IFR,LIFR}
	FieldsMissing  *prometheus.CounterVec // labels: field
	DecodeDuration prometheus.Histogram
	StoreErrors    prometheus.Counter
	PublishErrors  prometheus.Counter
	HTTPDecodes    *prometheus.CounterVec // labels: category
	IngestRunning  prometheus.Gauge
}

const namespace = "metar"

var decodeBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesDropped,
		m.ReportsPublished,
		m.ReportsDecoded,
		m.FieldsMissing,
		m.DecodeDuration,
		m.StoreErrors,
		m.PublishErrors,
		m.HTTPDecodes,
		m.IngestRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total feed messages received.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Feed messages that produced no report, by reason.",
		}, []string{"reason"}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Decoded reports published to the output subject.",
		}),
		ReportsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_decoded_total",
			Help:      "Decoded reports by flight category.",
		}, []string{"category"}),
		FieldsMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_missing_total",
			Help:      "Report fields that were absent and defaulted, by field.",
		}, []string{"field"}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time to dispatch and decode one feed message.",
			Buckets:   decodeBuckets,
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed report writes.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed publishes to the output subject.",
		}),
		HTTPDecodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_decodes_total",
			Help:      "Reports decoded through the HTTP API, by flight category.",
		}, []string{"category"}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      "1 while the feed subscription is active, 0 otherwise.",
		}),
	}
}

// ObserveReport counts a decoded report by category and each of its missing fields.
func (m *Metrics) ObserveReport(r metar.WeatherReport) {
	m.ReportsDecoded.WithLabelValues(string(r.FlightCategory)).Inc()
	for _, f := range r.Missing {
		m.FieldsMissing.WithLabelValues(string(f)).Inc()
	}
}
