package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfqa/internal/answer"
)

// fakeAsker is a test double for the Asker interface.
type fakeAsker struct {
	mu sync.Mutex
	// result is returned by every call.
	result answer.Result
	// gotQuestion and gotK record the last call.
	gotQuestion string
	gotK        int
	calls       int
}

func (f *fakeAsker) AnswerK(_ context.Context, question string, k int) answer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotQuestion, f.gotK = question, k
	f.calls++
	return f.result
}

// fakeCounter is a test double for the Counter interface.
type fakeCounter struct {
	n   int
	err error
}

func (f *fakeCounter) Count(_ context.Context) (int, error) { return f.n, f.err }

// newTestServer builds a *Server through New with an isolated registry.
func newTestServer(t *testing.T, asker Asker) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(asker, &Config{
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// postAsk sends body to POST /api/ask through the full handler chain.
func postAsk(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_RequiresAsker(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, &Config{}); err == nil {
		t.Fatal("expected error for nil asker")
	}
}

func TestHandleAsk_OK(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{result: answer.Result{
		Text:    "Sugar is sweet.",
		Outcome: answer.OutcomeOK,
		Sources: []answer.Source{{Source: "A.pdf", Page: 1, Distance: 0.1}},
	}}
	s := newTestServer(t, asker)

	w := postAsk(t, s, `{"question":"  How does sugar taste?  ","top_k":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if asker.gotQuestion != "How does sugar taste?" {
		t.Errorf("question: got %q, want trimmed question", asker.gotQuestion)
	}
	if asker.gotK != 3 {
		t.Errorf("top_k: got %d, want 3", asker.gotK)
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "Sugar is sweet." || resp.Outcome != answer.OutcomeOK {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != "A.pdf" || resp.Sources[0].Page != 1 {
		t.Errorf("sources: got %+v", resp.Sources)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleAsk_OutcomeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result answer.Result
		want   int
	}{
		{"not found", answer.Result{Text: answer.NothingFoundMessage, Outcome: answer.OutcomeNotFound}, http.StatusOK},
		{"invalid", answer.Result{Text: "Please enter a question.", Outcome: answer.OutcomeInvalid}, http.StatusBadRequest},
		{"error", answer.Result{Text: "Error: boom", Outcome: answer.OutcomeError, Err: errors.New("boom")}, http.StatusInternalServerError},
		{"timeout", answer.Result{Text: "Error: deadline", Outcome: answer.OutcomeError, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeAsker{result: tt.result})
			w := postAsk(t, s, `{"question":"q"}`)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d — body: %s", tt.want, w.Code, w.Body.String())
			}
			var resp askResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Answer != tt.result.Text {
				t.Errorf("answer: got %q, want %q", resp.Answer, tt.result.Text)
			}
			if resp.Sources == nil {
				t.Error("sources must encode as [] rather than null")
			}
		})
	}
}

func TestHandleAsk_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `question=hi`},
		{"unknown field", `{"message":"hi"}`},
		{"negative top_k", `{"question":"hi","top_k":-1}`},
		{"huge top_k", `{"question":"hi","top_k":1000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			asker := &fakeAsker{}
			s := newTestServer(t, asker)
			w := postAsk(t, s, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
			if asker.calls != 0 {
				t.Errorf("asker called %d times for a rejected request", asker.calls)
			}
		})
	}
}

func TestHandleAsk_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{})
	s.index = &fakeCounter{n: 42}
	s.cfg.IndexName = "sqlite:docs"

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Records != 42 || resp.Index != "sqlite:docs" || resp.Version == "" {
		t.Errorf("unexpected stats: %+v", resp)
	}
}

func TestHandleStats_IndexError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{})
	s.index = &fakeCounter{err: errors.New("disk gone")}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRequestLogger_ReusesInboundID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "client-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "client-123" {
		t.Errorf("X-Request-ID: got %q, want %q", got, "client-123")
	}
}
