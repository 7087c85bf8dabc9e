package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

// WorkerMetrics tracks document processing in the worker process.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        prometheus.Observer
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	processTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "wsi",
		Subsystem:   "worker",
		Name:        "document_process_total",
		Help:        "Processed documents by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	processDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "wsi",
		Subsystem:   "worker",
		Name:        "document_process_duration_seconds",
		Help:        "Time from PROCESSING to a terminal status, by outcome.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	processInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "wsi",
		Subsystem:   "worker",
		Name:        "document_process_in_flight",
		Help:        "Documents currently being processed.",
		ConstLabels: constLabels,
	})
	queueLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "wsi",
		Subsystem:   "worker",
		Name:        "queue_lag_seconds",
		Help:        "Delay between trigger submit and delivery to the worker.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		ConstLabels: constLabels,
	})

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer exposes the worker registry so pipeline metrics share its endpoint.
func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()
	outcome := processOutcome(err)
	m.processTotal.WithLabelValues(outcome).Inc()
	m.processDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

// processOutcome separates documents that cannot be processed (unsupported or
// empty content) from infrastructure failures.
func processOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "rejected"
	default:
		return "failed"
	}
}
