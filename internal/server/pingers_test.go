package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	ok := NewIndexPinger(&fakeCounter{n: 3}, "sqlite")
	if ok.Name() != "sqlite" {
		t.Errorf("Name: got %q, want %q", ok.Name(), "sqlite")
	}
	if err := ok.Ping(t.Context()); err != nil {
		t.Errorf("expected healthy index, got %v", err)
	}

	bad := NewIndexPinger(&fakeCounter{err: errors.New("locked")}, "sqlite")
	if err := bad.Ping(t.Context()); err == nil {
		t.Error("expected error from failing index")
	}
}

func TestHTTPPinger(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	if err := NewHTTPPinger("ollama", srv.URL+"/api/version", srv.Client()).Ping(t.Context()); err != nil {
		t.Errorf("expected healthy backend, got %v", err)
	}
	if err := NewHTTPPinger("ollama", srv.URL+"/broken", srv.Client()).Ping(t.Context()); err == nil {
		t.Error("expected error on 500")
	}
}
