package health

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
)

// JobCounter is the slice of the job store the collector needs.
type JobCounter interface {
	CountJobs(ctx context.Context, opts job.CountOpts) (int64, error)
}

// Compile-time interface check.
var _ prometheus.Collector = (*Collector)(nil)

// Collector exposes orchestrator state as Prometheus metrics, computed
// at scrape time: overall health, backend check latencies, queue
// depths by state, process memory, and breaker states.
type Collector struct {
	checker  *Checker
	jobs     JobCounter
	breakers *breaker.Registry
	queues   []string

	healthDesc  *prometheus.Desc
	uptimeDesc  *prometheus.Desc
	latencyDesc *prometheus.Desc
	waitingDesc *prometheus.Desc
	activeDesc  *prometheus.Desc
	doneDesc    *prometheus.Desc
	failedDesc  *prometheus.Desc
	memoryDesc  *prometheus.Desc
	breakerDesc *prometheus.Desc
}

// NewCollector creates a Collector. The breaker registry may be nil,
// in which case breaker state gauges are omitted.
func NewCollector(checker *Checker, jobs JobCounter, breakers *breaker.Registry) *Collector {
	return &Collector{
		checker:  checker,
		jobs:     jobs,
		breakers: breakers,
		queues:   queue.Names(),

		healthDesc: prometheus.NewDesc("flowtide_health",
			"Overall health: 1 healthy, 0.5 degraded, 0 unhealthy.", nil, nil),
		uptimeDesc: prometheus.NewDesc("flowtide_uptime_seconds",
			"Seconds since the service started.", nil, nil),
		latencyDesc: prometheus.NewDesc("flowtide_health_check_latency_ms",
			"Latency of the named backend check in milliseconds.",
			[]string{"check"}, nil),
		waitingDesc: prometheus.NewDesc("flowtide_queue_jobs_waiting",
			"Jobs waiting to run (pending plus retrying).",
			[]string{"queue"}, nil),
		activeDesc: prometheus.NewDesc("flowtide_queue_jobs_active",
			"Jobs currently running.", []string{"queue"}, nil),
		doneDesc: prometheus.NewDesc("flowtide_queue_jobs_completed",
			"Completed jobs still within retention.", []string{"queue"}, nil),
		failedDesc: prometheus.NewDesc("flowtide_queue_jobs_failed",
			"Failed jobs still within retention.", []string{"queue"}, nil),
		memoryDesc: prometheus.NewDesc("flowtide_memory_bytes",
			"Process memory usage by type.", []string{"type"}, nil),
		breakerDesc: prometheus.NewDesc("flowtide_breaker_state",
			"Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			[]string{"dependency"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.healthDesc
	ch <- c.uptimeDesc
	ch <- c.latencyDesc
	ch <- c.waitingDesc
	ch <- c.activeDesc
	ch <- c.doneDesc
	ch <- c.failedDesc
	ch <- c.memoryDesc
	ch <- c.breakerDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := c.checker.Check(ctx)
	ch <- prometheus.MustNewConstMetric(c.healthDesc, prometheus.GaugeValue, healthValue(report.Status))
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, report.UptimeSeconds)
	for _, r := range report.Checks {
		ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, r.LatencyMS, r.Name)
	}

	c.collectQueues(ctx, ch)
	c.collectMemory(ch)
	c.collectBreakers(ch)
}

func (c *Collector) collectQueues(ctx context.Context, ch chan<- prometheus.Metric) {
	for _, q := range c.queues {
		pending, err1 := c.jobs.CountJobs(ctx, job.CountOpts{Queue: q, State: job.StatePending})
		retrying, err2 := c.jobs.CountJobs(ctx, job.CountOpts{Queue: q, State: job.StateRetrying})
		if err1 == nil && err2 == nil {
			ch <- prometheus.MustNewConstMetric(c.waitingDesc, prometheus.GaugeValue,
				float64(pending+retrying), q)
		}
		if n, err := c.jobs.CountJobs(ctx, job.CountOpts{Queue: q, State: job.StateRunning}); err == nil {
			ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(n), q)
		}
		if n, err := c.jobs.CountJobs(ctx, job.CountOpts{Queue: q, State: job.StateCompleted}); err == nil {
			ch <- prometheus.MustNewConstMetric(c.doneDesc, prometheus.GaugeValue, float64(n), q)
		}
		if n, err := c.jobs.CountJobs(ctx, job.CountOpts{Queue: q, State: job.StateFailed}); err == nil {
			ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.GaugeValue, float64(n), q)
		}
	}
}

func (c *Collector) collectMemory(ch chan<- prometheus.Metric) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ch <- prometheus.MustNewConstMetric(c.memoryDesc, prometheus.GaugeValue, float64(m.HeapAlloc), "heap_alloc")
	ch <- prometheus.MustNewConstMetric(c.memoryDesc, prometheus.GaugeValue, float64(m.HeapSys), "heap_sys")
	ch <- prometheus.MustNewConstMetric(c.memoryDesc, prometheus.GaugeValue, float64(m.StackSys), "stack_sys")
	ch <- prometheus.MustNewConstMetric(c.memoryDesc, prometheus.GaugeValue, float64(m.Sys), "sys")
}

func (c *Collector) collectBreakers(ch chan<- prometheus.Metric) {
	if c.breakers == nil {
		return
	}
	for _, b := range c.breakers.All() {
		ch <- prometheus.MustNewConstMetric(c.breakerDesc, prometheus.GaugeValue,
			breakerValue(b.State()), b.Name())
	}
}

func healthValue(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

func breakerValue(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 2
	case breaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
