package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector counts session loop outcomes
type Collector struct {
	registry        *prometheus.Registry
	ImagesLoaded    prometheus.Counter
	LabelsSubmitted prometheus.Counter
	Skipped         prometheus.Counter
	SubmitFailures  prometheus.Counter
	FetchFailures   prometheus.Counter
}

// New creates a collector on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ImagesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_images_loaded_total",
			Help: "Images installed on the annotation surface",
		}),
		LabelsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_labels_submitted_total",
			Help: "Bounding boxes accepted by the labeling server",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_submissions_skipped_total",
			Help: "Submit triggers with no box drawn",
		}),
		SubmitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_submit_failures_total",
			Help: "Bounding box posts that failed",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_fetch_failures_total",
			Help: "Next-image requests or loads that failed",
		}),
	}
	c.registry.MustRegister(c.ImagesLoaded, c.LabelsSubmitted, c.Skipped, c.SubmitFailures, c.FetchFailures)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
}
