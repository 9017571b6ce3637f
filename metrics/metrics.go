// Package metrics exposes Prometheus counters and a histogram for the
// poll loop and publish stage, scraped over a minimal /metrics endpoint.
// This is a process-metrics surface only; it does not make the worker a
// IIIF server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every metric this worker emits.
type Recorder struct {
	ActivitiesProcessed prometheus.Counter
	JobsSucceeded       prometheus.Counter
	JobsFailed          prometheus.Counter
	JobsSkipped         prometheus.Counter
	PublishLatency      prometheus.Histogram
}

// NewRecorder registers every metric against a fresh registry.
func NewRecorder() (*Recorder, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		ActivitiesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iiif_builder",
			Name:      "activities_processed_total",
			Help:      "Number of preservation activities pulled from the feed.",
		}),
		JobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iiif_builder",
			Name:      "jobs_succeeded_total",
			Help:      "Number of jobs that reached the Finished phase.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iiif_builder",
			Name:      "jobs_failed_total",
			Help:      "Number of jobs that reached the Failed phase with a system-fault error.",
		}),
		JobsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iiif_builder",
			Name:      "jobs_skipped_total",
			Help:      "Number of jobs skipped by the archival-group prefix filter.",
		}),
		PublishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iiif_builder",
			Name:      "publish_latency_seconds",
			Help:      "Latency of the IIIFPublisher GET/PUT round trip.",
			Buckets:   prometheus.DefBuckets,
		}),
	}, registry
}

// ObservePublish times fn and records its duration on PublishLatency
// regardless of whether fn returns an error.
func (r *Recorder) ObservePublish(fn func() error) error {
	start := time.Now()
	err := fn()
	r.PublishLatency.Observe(time.Since(start).Seconds())
	return err
}

// Server serves the registry's metrics over HTTP.
type Server struct {
	http *http.Server
}

// NewServer builds a Server bound to addr, exposing registry at /metrics.
func NewServer(addr string, registry *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
