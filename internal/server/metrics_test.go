package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/pdfqa/internal/answer"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T, asker Asker) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(asker, &Config{MetricsRegistry: reg, MetricsGatherer: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeAsker{})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_AskCounterByOutcome(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeAsker{result: answer.Result{
		Text:    answer.NothingFoundMessage,
		Outcome: answer.OutcomeNotFound,
	}})

	for range 2 {
		postAsk(t, s, `{"question":"anything"}`)
	}

	if got := testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues("not_found")); got != 2 {
		t.Errorf("pdfqa_ask_requests_total{outcome=not_found}: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.askInFlight); got != 0 {
		t.Errorf("pdfqa_ask_in_flight: want 0 after completion, got %v", got)
	}
}

func Test_Metrics_HTTPRequestsByHandler(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeAsker{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "health", "200")); got != 1 {
		t.Errorf("pdfqa_http_requests_total{handler=health}: want 1, got %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "pdfqa_http_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("pdfqa_http_duration_seconds not found in gathered metrics")
	}
}

func Test_Metrics_BadRequestStatusRecorded(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeAsker{})

	postAsk(t, s, `not json`)

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("POST", "ask", "400")); got != 1 {
		t.Errorf("pdfqa_http_requests_total{handler=ask,code=400}: want 1, got %v", got)
	}
}
