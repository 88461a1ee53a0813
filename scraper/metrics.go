package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcomes reported on scraper_items_total.
const (
	OutcomeExtracted = "extracted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeFiltered  = "filtered"
)

// Metrics bundles Prometheus collectors for one crawl. Every collector carries
// a constant site label.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	ItemsTotal      *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	AuxTasksTotal   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics(site string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"site": site}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "scraper_requests_total",
			Help:        "Page loads and HTTP requests issued by the scraper.",
			ConstLabels: labels,
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "scraper_request_duration_seconds",
			Help:        "Latency of page loads and HTTP requests.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "scraper_pages_total",
			Help:        "Listing pages processed.",
			ConstLabels: labels,
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "scraper_items_total",
			Help:        "Listing items by outcome.",
			ConstLabels: labels,
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "scraper_retries_total",
			Help:        "Retry attempts by operation.",
			ConstLabels: labels,
		},
		[]string{"operation"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "scraper_errors_total",
			Help:        "Scraper errors by type.",
			ConstLabels: labels,
		},
		[]string{"error_type"},
	)
	aux := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "scraper_aux_tasks_total",
			Help:        "Detail-page side extractions by task and outcome.",
			ConstLabels: labels,
		},
		[]string{"task", "outcome"},
	)

	registry.MustRegister(requests, requestDuration, pages, items, retries, errorsTotal, aux)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		ItemsTotal:      items,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		AuxTasksTotal:   aux,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncItems increments the items counter for an outcome.
func (m *Metrics) IncItems(outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncAux records the outcome of one side extraction.
func (m *Metrics) IncAux(task, outcome string) {
	if m == nil {
		return
	}
	m.AuxTasksTotal.WithLabelValues(task, outcome).Inc()
}
