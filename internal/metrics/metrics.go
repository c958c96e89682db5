// Package metrics counts fetch, verify, search and resolution outcomes.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsgrinder"

// Metrics owns a private registry with the pipeline counters.
type Metrics struct {
	registry   *prometheus.Registry
	fetch      *prometheus.CounterVec
	verify     *prometheus.CounterVec
	search     *prometheus.CounterVec
	resolution *prometheus.CounterVec
}

// New registers the counters.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.fetch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Page fetches by method and status",
	}, []string{"method", "status"})
	m.verify = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verify_total",
		Help:      "Verification outcomes by status",
	}, []string{"status"})
	m.search = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_total",
		Help:      "Search queries by channel and status",
	}, []string{"channel", "status"})
	m.resolution = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolution_total",
		Help:      "Event resolutions by outcome",
	}, []string{"outcome"})

	m.registry.MustRegister(m.fetch, m.verify, m.search, m.resolution)
	return m
}

// Fetch counts one fetch attempt.
func (m *Metrics) Fetch(method, status string) {
	if m == nil {
		return
	}
	m.fetch.WithLabelValues(method, status).Inc()
}

// Verify counts one verification outcome.
func (m *Metrics) Verify(status string) {
	if m == nil {
		return
	}
	m.verify.WithLabelValues(status).Inc()
}

// Search counts one search query.
func (m *Metrics) Search(channel, status string) {
	if m == nil {
		return
	}
	m.search.WithLabelValues(channel, status).Inc()
}

// Resolution counts one finished event.
func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolution.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listening", "addr", addr)
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
