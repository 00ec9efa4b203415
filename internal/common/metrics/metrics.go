// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntakeRecordsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_records_created_total",
			Help: "Total number of intake records created",
		},
	)

	IntakeStepsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_steps_processed_total",
			Help: "Total number of intake steps accepted",
		},
		[]string{"step"},
	)

	IntakeStepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_steps_failed_total",
			Help: "Total number of intake steps rejected",
		},
		[]string{"step", "error_code"},
	)

	IntakeStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "intake_step_duration_seconds",
			Help: "Duration of step processing in seconds",
		},
		[]string{"step"},
	)

	IntakesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intakes_completed_total",
			Help: "Total number of intakes that reached the completed status",
		},
	)
)
