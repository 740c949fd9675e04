// Package metrics exposes ingestion counters on the Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatasetsIngested counts datasets that reached INGESTED.
	DatasetsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_datasets_ingested_total",
		Help: "Datasets that completed ingestion.",
	})

	// DatasetsFailed counts datasets that entered FAILED, by retryability.
	DatasetsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_datasets_failed_total",
		Help: "Datasets that entered the FAILED state.",
	}, []string{"retryable"})

	// ReadingsWritten counts normalized time-series rows upserted.
	ReadingsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_readings_written_total",
		Help: "Normalized readings written by the ETL engine.",
	})

	// EntitiesWritten counts unified objects upserted.
	EntitiesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_entities_written_total",
		Help: "Unified objects written by the ETL engine.",
	})

	// RowsRejected counts row-local rejections during ETL.
	RowsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_rows_rejected_total",
		Help: "Rows rejected during ETL.",
	})

	// InferenceFailures counts mapping inference calls that ended
	// unavailable.
	InferenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_inference_failures_total",
		Help: "Mapping inference calls that failed as unavailable.",
	})
)
