package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.InstrumentScanned("chip", "matched")
	r.InstrumentScanned("chip", "skipped")
	r.InstrumentScanned("chip", "skipped")
	r.Matched("chip")
	r.ScanFinished("chip", 90*time.Second, 1)
	r.ObserveFetch("twse", time.Second, nil)
	r.ObserveFetch("twse", time.Second, errors.New("down"))

	if got := testutil.ToFloat64(r.instruments.WithLabelValues("chip", "skipped")); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.matches.WithLabelValues("chip")); got != 1 {
		t.Errorf("matches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastMatches.WithLabelValues("chip")); got != 1 {
		t.Errorf("last matches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.fetchErrors.WithLabelValues("twse")); got != 1 {
		t.Errorf("fetch errors = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ScanFinished("pullback", time.Minute, 3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"screener_scans_total", `strategy="pullback"`, "screener_last_scan_matches"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Matched("chip")
	if got := testutil.ToFloat64(b.matches.WithLabelValues("chip")); got != 0 {
		t.Errorf("second recorder saw %v matches", got)
	}
}
