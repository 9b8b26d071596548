package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики orchestrator'а. Регистрируются в глобальном реестре,
// отдаются через promhttp на /metrics.
var (
	// StepsStarted — количество запущенных шагов по исполнителям.
	StepsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montage_steps_started_total",
		Help: "Number of step executions started.",
	}, []string{"executor"})

	// StepsCompleted — количество успешно завершённых шагов.
	StepsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montage_steps_completed_total",
		Help: "Number of step executions completed successfully.",
	}, []string{"executor"})

	// StepsFailed — количество упавших шагов.
	StepsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montage_steps_failed_total",
		Help: "Number of step executions that failed.",
	}, []string{"executor"})

	// StepDuration — длительность выполнения шагов.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "montage_step_duration_seconds",
		Help:    "Step execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"executor"})

	// ActiveProjects — количество проектов в выполнении.
	ActiveProjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "montage_active_projects",
		Help: "Number of projects currently executing.",
	})

	// QueuedProjects — длина очереди проектов.
	QueuedProjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "montage_queued_projects",
		Help: "Number of projects waiting in the queue.",
	})

	// ProjectsCompleted — количество завершённых проектов.
	ProjectsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "montage_projects_completed_total",
		Help: "Number of projects that reached COMPLETED.",
	})

	// ProjectsFailed — количество проектов, остановившихся на FAILED.
	ProjectsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "montage_projects_failed_total",
		Help: "Number of projects that entered FAILED.",
	})
)
