package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// Metrics groups all Prometheus instruments used across the engine.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ChannelSent     *prometheus.CounterVec
	ChannelFailed   *prometheus.CounterVec
	ChannelSkipped  *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec
	BufferDepth     *prometheus.GaugeVec
	PoisonItems     prometheus.Counter
	JobRuns         *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	TrackingOpens   prometheus.Counter
	TrackingClicks  prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChannelSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_channel_sent_total",
			Help: "Successful channel sends, by channel.",
		}, []string{"channel"}),

		ChannelFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_channel_failed_total",
			Help: "Channel sends that failed after provider fallback, by channel.",
		}, []string{"channel"}),

		ChannelSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_channel_skipped_total",
			Help: "Channel sends skipped for lack of an enabled template, by channel.",
		}, []string{"channel"}),

		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notify_dispatch_item_seconds",
			Help:    "Per-item processing latency within a dispatch pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"priority"}),

		BufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notify_dispatch_buffer_depth",
			Help: "Items waiting in the in-memory dispatch buffer, by priority tier.",
		}, []string{"tier"}),

		PoisonItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_poison_items_total",
			Help: "Queue items force-failed after exhausting dispatch attempts.",
		}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_job_runs_total",
			Help: "Job executions by job name and terminal status.",
		}, []string{"job", "status"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notify_job_duration_seconds",
			Help:    "Wall-clock duration of job executions.",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),

		TrackingOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_tracking_opens_total",
			Help: "First-occurrence open events recorded.",
		}),

		TrackingClicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_tracking_clicks_total",
			Help: "Click events recorded.",
		}),
	}

	reg.MustRegister(
		m.ChannelSent,
		m.ChannelFailed,
		m.ChannelSkipped,
		m.DispatchLatency,
		m.BufferDepth,
		m.PoisonItems,
		m.JobRuns,
		m.JobDuration,
		m.TrackingOpens,
		m.TrackingClicks,
	)

	return m
}

// ObserveChannel records the outcome of a single channel send attempt.
func (m *Metrics) ObserveChannel(ch domain.Channel, res domain.ChannelResult) {
	switch {
	case res.Skipped:
		m.ChannelSkipped.WithLabelValues(string(ch)).Inc()
	case res.Success:
		m.ChannelSent.WithLabelValues(string(ch)).Inc()
	default:
		m.ChannelFailed.WithLabelValues(string(ch)).Inc()
	}
}

// ObserveItem records per-item latency within a dispatch pass.
func (m *Metrics) ObserveItem(priority domain.Priority, latency time.Duration) {
	m.DispatchLatency.WithLabelValues(string(priority)).Observe(latency.Seconds())
}

// ObserveDepths records the buffer fill level of the current pass.
func (m *Metrics) ObserveDepths(critical, high, medium, low int) {
	m.BufferDepth.WithLabelValues("critical").Set(float64(critical))
	m.BufferDepth.WithLabelValues("high").Set(float64(high))
	m.BufferDepth.WithLabelValues("medium").Set(float64(medium))
	m.BufferDepth.WithLabelValues("low").Set(float64(low))
}

// ObservePoison counts items force-failed by the exhaustion sweep.
func (m *Metrics) ObservePoison(count int64) {
	m.PoisonItems.Add(float64(count))
}

// ObserveJob records one finished job execution.
func (m *Metrics) ObserveJob(job string, status domain.ExecutionStatus, d time.Duration) {
	m.JobRuns.WithLabelValues(job, string(status)).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
