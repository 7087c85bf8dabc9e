package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

// PipelineMetrics counts ingestion, watcher and deletion outcomes.
type PipelineMetrics struct {
	service string

	ingestTotal        *prometheus.CounterVec
	compensationsTotal *prometheus.CounterVec
	orphansTotal       *prometheus.CounterVec
	pollsTotal         *prometheus.CounterVec
	deletionsTotal     *prometheus.CounterVec
	reconciledTotal    *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Upload attempts by terminal step and status.",
		},
		[]string{"service", "step", "status"},
	)
	compensationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "ingest",
			Name:      "compensations_total",
			Help:      "Blob removals after failed registration by status.",
		},
		[]string{"service", "status"},
	)
	orphansTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "storage",
			Name:      "orphaned_blobs_total",
			Help:      "Blobs left without a metadata row, by origin.",
		},
		[]string{"service", "source"},
	)
	pollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "watch",
			Name:      "polls_total",
			Help:      "Workspace listing polls by status.",
		},
		[]string{"service", "status"},
	)
	deletionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "documents",
			Name:      "deletions_total",
			Help:      "Document deletions by status.",
		},
		[]string{"service", "status"},
	)
	reconciledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsi",
			Subsystem: "storage",
			Name:      "reconciled_blobs_total",
			Help:      "Orphaned blobs removed by reconciliation.",
		},
		[]string{"service"},
	)

	registerer.MustRegister(ingestTotal, compensationsTotal, orphansTotal, pollsTotal, deletionsTotal, reconciledTotal)

	return &PipelineMetrics{
		service:            service,
		ingestTotal:        ingestTotal,
		compensationsTotal: compensationsTotal,
		orphansTotal:       orphansTotal,
		pollsTotal:         pollsTotal,
		deletionsTotal:     deletionsTotal,
		reconciledTotal:    reconciledTotal,
	}
}

func (m *PipelineMetrics) RecordIngest(step domain.IngestStep, err error) {
	m.ingestTotal.WithLabelValues(m.service, string(step), statusLabel(err)).Inc()
}

func (m *PipelineMetrics) RecordCompensation(err error) {
	m.compensationsTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}

func (m *PipelineMetrics) RecordOrphan(source string) {
	if source == "" {
		source = "unknown"
	}
	m.orphansTotal.WithLabelValues(m.service, source).Inc()
}

func (m *PipelineMetrics) RecordPoll(err error) {
	m.pollsTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}

func (m *PipelineMetrics) RecordDeletion(err error) {
	m.deletionsTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}

func (m *PipelineMetrics) RecordReconciled(removed int) {
	if removed <= 0 {
		return
	}
	m.reconciledTotal.WithLabelValues(m.service).Add(float64(removed))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
