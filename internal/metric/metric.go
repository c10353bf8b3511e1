// Package metric exports pipe statistics as Prometheus metrics.
package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects pipe events and gauges. It implements
// pipe.StatsRecorder.
type Recorder struct {
	registry *prometheus.Registry

	Events  *prometheus.CounterVec
	Gauges  *prometheus.GaugeVec
	Streams prometheus.Gauge
}

// NewRecorder creates a Recorder on its own registry, with Go runtime and
// process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "siflow",
				Subsystem: "pipe",
				Name:      "events_total",
				Help:      "Events thrown and counted by pipes",
			},
			[]string{"pipe", "event"},
		),
		Gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "siflow",
				Subsystem: "pipe",
				Name:      "gauge",
				Help:      "Last value reported by pipes",
			},
			[]string{"pipe", "name"},
		),
		Streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "siflow",
			Name:      "active_streams",
			Help:      "Inputs currently decoded",
		}),
	}
	r.registry.MustRegister(
		r.Events,
		r.Gauges,
		r.Streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Inc bumps the counter of event for the pipe type.
func (r *Recorder) Inc(pipe, event string) {
	r.Events.WithLabelValues(pipe, event).Inc()
}

// Set records a gauge value for the pipe type.
func (r *Recorder) Set(pipe, name string, v float64) {
	r.Gauges.WithLabelValues(pipe, name).Set(v)
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve exposes the metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
