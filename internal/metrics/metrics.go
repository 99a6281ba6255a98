// Package metrics exposes generation metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blog_writer"

// Attempt results.
const (
	ResultSuccess     = "success"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

// Recorder is safe to use as a nil pointer; every method becomes a no-op.
type Recorder struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generator calls by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_finished_total",
			Help:      "Posts that reached a terminal status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time from picking up a post to its terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generations_in_flight",
			Help:      "Posts currently being generated.",
		}),
	}
	r.registry.MustRegister(
		r.attempts, r.outcomes, r.duration, r.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Attempt(result string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(result).Inc()
}

func (r *Recorder) Finished(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// Started bumps the in-flight gauge and returns the matching decrement.
func (r *Recorder) Started() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
