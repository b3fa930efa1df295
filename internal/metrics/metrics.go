// Package metrics exposes Prometheus instrumentation for the OCR pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "pages_processed_total",
			Help:      "Total pages processed by result (completed, failed)",
		},
		[]string{"result"},
	)

	pageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "folio",
			Name:      "page_processing_seconds",
			Help:      "Duration of per-page OCR processing including retries",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	ocrRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "ocr_requests_total",
			Help:      "Total OCR backend invocations by backend and result",
		},
		[]string{"backend", "result"},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Name:      "active_workers",
			Help:      "Workers currently processing a claimed page",
		},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(pagesProcessed, pageDuration, ocrRequests, activeWorkers)
	})
}

// RegisterQueueDepth installs a gauge polling fn for the number of queued
// pages. Registration errors (e.g. a second server in one process) are
// ignored: the first gauge keeps reporting.
func RegisterQueueDepth(fn func() float64) {
	_ = prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Name:      "queue_depth",
			Help:      "Pages currently queued for OCR",
		},
		fn,
	))
}

// Handler returns the http.Handler for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

// IncPageProcessed counts one finished page by result.
func IncPageProcessed(result string) { pagesProcessed.WithLabelValues(result).Inc() }

// ObservePageDuration records how long one page took end to end.
func ObservePageDuration(d time.Duration) { pageDuration.Observe(d.Seconds()) }

// IncOCRRequest counts one backend invocation by result.
func IncOCRRequest(backend, result string) { ocrRequests.WithLabelValues(backend, result).Inc() }

// SetActiveWorkers reports the current active worker count.
func SetActiveWorkers(n int) { activeWorkers.Set(float64(n)) }
