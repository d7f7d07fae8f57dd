package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePage(StatusOK, 200*time.Millisecond)
	m.ObservePage(StatusFailed, time.Second)
	m.ObservePage(StatusOK, time.Millisecond)
	m.AddPosts(7)
	m.AddPosts(-1)
	m.ObserveMedia("img", StatusOK)
	m.ObserveSink("csv", nil)
	m.ObserveSink("postgres", errors.New("down"))

	if val := testutil.ToFloat64(m.pagesTotal.WithLabelValues(StatusOK)); val != 2 {
		t.Errorf("Expected 2 ok pages, got %f", val)
	}
	if val := testutil.ToFloat64(m.postsTotal); val != 7 {
		t.Errorf("Expected 7 posts, got %f", val)
	}
	if val := testutil.ToFloat64(m.sinkFlushes.WithLabelValues("postgres", StatusFailed)); val != 1 {
		t.Errorf("Expected one failed postgres flush, got %f", val)
	}
	if n := testutil.CollectAndCount(m.pageDuration); n != 1 {
		t.Errorf("Expected one page duration series, got %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePage(StatusOK, time.Second)
	m.AddPosts(3)
	m.ObserveMedia("video", StatusSkipped)
	m.ObserveSink("csv", nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).AddPosts(2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "weibocrawler_posts_total 2") {
		t.Errorf("Expected posts counter in output, got:\n%s", rec.Body.String())
	}
}
