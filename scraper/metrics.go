package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesTotal       prometheus.Counter
	RecordsTotal     prometheus.Counter
	NavigationsTotal *prometheus.CounterVec
	WaitDuration     *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	CurrentPage      prometheus.Gauge
	LastPage         prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total number of pages scraped and persisted.",
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total number of table rows persisted.",
		},
	)
	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_navigations_total",
			Help: "Browser navigation actions by kind.",
		},
		[]string{"action"},
	)
	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_wait_duration_seconds",
			Help:    "Time spent in barrier waits by timeout tier.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tier"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	currentPage := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_current_page",
			Help: "Page the browser is positioned on.",
		},
	)
	lastPage := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_last_page",
			Help: "Last page number reported by the portal.",
		},
	)

	registry.MustRegister(pages, records, navigations, waitDuration, errorsTotal, currentPage, lastPage)

	return &Metrics{
		Registry:         registry,
		PagesTotal:       pages,
		RecordsTotal:     records,
		NavigationsTotal: navigations,
		WaitDuration:     waitDuration,
		ErrorsTotal:      errorsTotal,
		CurrentPage:      currentPage,
		LastPage:         lastPage,
	}
}

// ObservePage records a persisted page and its row count.
func (m *Metrics) ObservePage(records int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.RecordsTotal.Add(float64(records))
}

// IncNavigation increments the navigation counter for an action.
func (m *Metrics) IncNavigation(action string) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(action).Inc()
}

// ObserveWait records how long a barrier wait took.
func (m *Metrics) ObserveWait(tier string, d time.Duration) {
	if m == nil {
		return
	}
	m.WaitDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetPages updates the position gauges. A zero last page is left unset.
func (m *Metrics) SetPages(current, last int) {
	if m == nil {
		return
	}
	m.CurrentPage.Set(float64(current))
	if last > 0 {
		m.LastPage.Set(float64(last))
	}
}
