// Package metrics exposes the engine's Prometheus metrics registry and
// the backpressure primitives (circuit breaker, adaptive queue reader,
// load shedder) that consume queue depth and failure signals to keep
// the system from falling over under load.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the process-wide metrics registry. It is constructed once
// per binary and injected into every component that reports counters;
// it is the one piece of intentional global state the system carries
// (everything else is dependency-injected).
type Metrics struct {
	Registry *prometheus.Registry

	JobDuration        *prometheus.HistogramVec
	JobsTotal          *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	ActiveJobs         prometheus.Gauge
	QueueDepth         *prometheus.GaugeVec
	SubmissionSize     prometheus.Histogram
	LanguageMemory     *prometheus.HistogramVec
	VerdictTotal       *prometheus.CounterVec
	ScoreHistogram     prometheus.Histogram
	RateLimitRejects   *prometheus.CounterVec
	CircuitBreakerGauge *prometheus.GaugeVec
	WorkerCount        prometheus.Gauge
	WorkerRestarts     prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New constructs a Metrics registry with every series named in the
// engine's observability surface pre-registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codearena_job_duration_seconds",
			Help:    "Time spent executing a submission end to end.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"pool", "language", "status", "verdict"}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_jobs_total",
			Help: "Jobs claimed by a worker, labelled by pool and language.",
		}, []string{"pool", "language"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_errors_total",
			Help: "Errors encountered, labelled by component and kind.",
		}, []string{"component", "kind"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codearena_active_jobs",
			Help: "Number of jobs currently being executed by this worker process.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codearena_queue_depth",
			Help: "Approximate pending entries in a pool's stream.",
		}, []string{"pool"}),
		SubmissionSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codearena_submission_size_bytes",
			Help:    "Size in bytes of submitted source code.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}),
		LanguageMemory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codearena_memory_used_kb",
			Help:    "Peak RSS observed for a run, labelled by language.",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}, []string{"language"}),
		VerdictTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_verdict_total",
			Help: "Final verdicts issued, labelled by verdict and language.",
		}, []string{"verdict", "language"}),
		ScoreHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codearena_score_percentage",
			Help:    "Final score percentage distribution across submissions.",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 100},
		}),
		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, labelled by bucket class.",
		}, []string{"bucket_class"}),
		CircuitBreakerGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codearena_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open), labelled by name.",
		}, []string{"name"}),
		WorkerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codearena_worker_count",
			Help: "Number of worker handler goroutines currently running.",
		}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codearena_worker_restarts_total",
			Help: "Number of times the worker supervisor restarted a claim loop.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_http_requests_total",
			Help: "HTTP requests served by the Intake API, labelled by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codearena_http_request_duration_seconds",
			Help:    "HTTP request latency, labelled by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.JobDuration, m.JobsTotal, m.ErrorsTotal, m.ActiveJobs, m.QueueDepth,
		m.SubmissionSize, m.LanguageMemory, m.VerdictTotal, m.ScoreHistogram,
		m.RateLimitRejects, m.CircuitBreakerGauge, m.WorkerCount, m.WorkerRestarts,
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
	)

	return m
}
