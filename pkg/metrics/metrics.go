// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"weibocrawler/pkg/logger"
)

// Page and media outcomes used as label values
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Metrics groups the crawler's collectors. A nil *Metrics records nothing.
type Metrics struct {
	pagesTotal   *prometheus.CounterVec
	postsTotal   prometheus.Counter
	mediaTotal   *prometheus.CounterVec
	sinkFlushes  *prometheus.CounterVec
	pageDuration prometheus.Histogram
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weibocrawler_pages_total",
				Help: "Total number of timeline pages fetched, labeled by status.",
			},
			[]string{"status"},
		),
		postsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "weibocrawler_posts_total",
				Help: "Total number of posts appended to crawl buffers.",
			},
		),
		mediaTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weibocrawler_media_total",
				Help: "Total number of media assets handled, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		),
		sinkFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weibocrawler_sink_flush_total",
				Help: "Total number of sink writes, labeled by sink and result.",
			},
			[]string{"sink", "result"},
		),
		pageDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "weibocrawler_page_duration_seconds",
				Help:    "Histogram of page processing time, fetch through normalization.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
	}
}

// ObservePage records one page attempt
func (m *Metrics) ObservePage(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues(status).Inc()
	m.pageDuration.Observe(d.Seconds())
}

// AddPosts counts posts appended to a buffer
func (m *Metrics) AddPosts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.postsTotal.Add(float64(n))
}

// ObserveMedia records the result of one asset
func (m *Metrics) ObserveMedia(kind, result string) {
	if m == nil {
		return
	}
	m.mediaTotal.WithLabelValues(kind, result).Inc()
}

// ObserveSink records one sink write
func (m *Metrics) ObserveSink(sink string, err error) {
	if m == nil {
		return
	}
	result := StatusOK
	if err != nil {
		result = StatusFailed
	}
	m.sinkFlushes.WithLabelValues(sink, result).Inc()
}

// Handler returns an http.Handler for exposing the gatherer's metrics
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logger.Logger) error {
	log = logger.OrGlobal(log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown failed")
		}
	}()

	log.InfoWithFields("Serving metrics", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
