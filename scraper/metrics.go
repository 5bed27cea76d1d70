package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	ItemsEmittedTotal  prometheus.Counter
	PagesCrawledTotal  prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	StrategySwitches   *prometheus.CounterVec
	CurrencyDetections *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopcrawl_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsEmitted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcrawl_items_emitted_total",
			Help: "Total number of deduplicated products emitted.",
		},
	)
	pagesCrawled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcrawl_pages_crawled_total",
			Help: "Total catalog listing pages processed.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopcrawl_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_errors_total",
			Help: "Total number of transport errors by category.",
		},
		[]string{"category"},
	)
	strategySwitches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_strategy_switches_total",
			Help: "Pagination strategy fallbacks by transition.",
		},
		[]string{"from", "to"},
	)
	currencyDetections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcrawl_currency_detections_total",
			Help: "Successful currency detections by source.",
		},
		[]string{"source"},
	)

	registry.MustRegister(requests, requestDuration, itemsEmitted, pagesCrawled,
		retries, errorsTotal, strategySwitches, currencyDetections)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		ItemsEmittedTotal:  itemsEmitted,
		PagesCrawledTotal:  pagesCrawled,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		StrategySwitches:   strategySwitches,
		CurrencyDetections: currencyDetections,
	}
}

// IncRequest counts one issued request by kind.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems counts one emitted product.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsEmittedTotal.Inc()
}

// IncPages counts one processed listing page.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesCrawledTotal.Inc()
}

// IncRetries counts one scheduled retry.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError counts one transport error by category.
func (m *Metrics) IncError(category Category) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(category)).Inc()
}

// IncStrategySwitch counts one pagination fallback transition.
func (m *Metrics) IncStrategySwitch(from, to string) {
	if m == nil {
		return
	}
	m.StrategySwitches.WithLabelValues(from, to).Inc()
}

// IncCurrencyDetection counts one successful currency detection.
func (m *Metrics) IncCurrencyDetection(source string) {
	if m == nil {
		return
	}
	m.CurrencyDetections.WithLabelValues(source).Inc()
}
