// Package metrics exposes Prometheus collectors for curation, composition, sharing and the
// item worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsletter"

// Metrics holds every collector on its own registry, so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Curation
	AddedTotal   prometheus.Counter
	RemovedTotal prometheus.Counter
	EditedTotal  prometheus.Counter
	CorruptReads prometheus.Counter
	Collection   prometheus.Gauge

	// Compose and share
	ComposeDuration prometheus.Histogram
	ComposeFailures prometheus.Counter
	ComposedPages   prometheus.Histogram
	SendsTotal      *prometheus.CounterVec
	SendDuration    prometheus.Histogram

	// Worker
	EventsProcessed   *prometheus.CounterVec
	DuplicatesSkipped prometheus.Counter
	DLQPublished      prometheus.Counter

	// Retention
	ArchiveDeleted prometheus.Counter
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.AddedTotal = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_added_total",
		Help:      "Curated items added to the collection",
	})
	m.RemovedTotal = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_removed_total",
		Help:      "Curated items removed from the collection",
	})
	m.EditedTotal = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_edited_total",
		Help:      "Curated item content edits",
	})
	m.CorruptReads = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_corrupt_reads_total",
		Help:      "Persisted collections that could not be decoded and were treated as empty",
	})

	m.Collection = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collection_items",
		Help:      "Items in the persisted newsletter collection, refreshed on every change signal",
	})

	m.ComposeDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "compose_duration_seconds",
		Help:      "Time to compose the newsletter PDF, header image included",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	m.ComposeFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compose_failures_total",
		Help:      "Compositions that failed",
	})
	m.ComposedPages = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "composed_pages",
		Help:      "Pages per composed newsletter",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
	})
	m.SendsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_total",
		Help:      "Newsletter email sends by outcome",
	}, []string{"outcome"})
	m.SendDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "send_duration_seconds",
		Help:      "Latency of the remote send call",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	m.EventsProcessed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_events_total",
		Help:      "Item events handled by the worker by outcome",
	}, []string{"outcome"})
	m.DuplicatesSkipped = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_duplicates_skipped_total",
		Help:      "Item events skipped because the id was seen recently",
	})
	m.DLQPublished = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_dlq_published_total",
		Help:      "Item events written to the dead-letter topic",
	})

	m.ArchiveDeleted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_deleted_total",
		Help:      "Archived items removed by retention",
	})

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ItemsAdded, ItemRemoved, ItemEdited and CorruptRead satisfy curation.Observer.

func (m *Metrics) ItemsAdded(n int) { m.AddedTotal.Add(float64(n)) }
func (m *Metrics) ItemRemoved()     { m.RemovedTotal.Inc() }
func (m *Metrics) ItemEdited()      { m.EditedTotal.Inc() }
func (m *Metrics) CorruptRead()     { m.CorruptReads.Inc() }

// Composed and Sent satisfy share.Observer.

func (m *Metrics) Composed(took time.Duration, pages int, err error) {
	m.ComposeDuration.Observe(took.Seconds())
	if err != nil {
		m.ComposeFailures.Inc()
		return
	}
	m.ComposedPages.Observe(float64(pages))
}

func (m *Metrics) Sent(took time.Duration, err error) {
	m.SendDuration.Observe(took.Seconds())
	m.SendsTotal.WithLabelValues(outcome(err)).Inc()
}

// WorkerEvent records the outcome of one consumed item event.
func (m *Metrics) WorkerEvent(err error) {
	m.EventsProcessed.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
