package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServeReadyReflectsReadyFlag(t *testing.T) {
	ready := false
	srv := NewServer(":0", false, &ready)
	h := srv.Handler

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want %d before ready", rec.Code, http.StatusServiceUnavailable)
	}

	ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d once ready", rec.Code, http.StatusOK)
	}
}

func TestServeReadyWithNilFlagAlwaysOK(t *testing.T) {
	srv := NewServer(":0", false, nil)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServePing(t *testing.T) {
	srv := NewServer(":0", false, nil)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong\n" {
		t.Fatalf("got (%d, %q), want (200, \"pong\\n\")", rec.Code, rec.Body.String())
	}
}

func TestPprofDisabledByDefault(t *testing.T) {
	srv := NewServer(":0", false, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want %d when pprof disabled", rec.Code, http.StatusNotFound)
	}
}
