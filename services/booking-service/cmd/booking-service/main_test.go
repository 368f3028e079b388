package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

func TestHTTPHandlerCORSOnPublicRoutesOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/booking")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://book.example.com")
	cfg, err := loadSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	mux.HandleFunc("/api/v1/public/book", ok)
	mux.HandleFunc("/api/v1/appointments/cancel", ok)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// One request per window: a preflight must not use up the booking page's quota.
	limiter := httpx.NewRateLimiter(1, time.Minute).Middleware()
	h := newHTTPHandler(mux, cfg, logger, limiter)

	preflight := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://book.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("/api/v1/public/book")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://book.example.com" {
		t.Fatalf("public preflight: status=%d headers=%v", rec.Code, rec.Header())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", nil)
	req.Header.Set("Origin", "https://book.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("public request: status=%d headers=%v", rec.Code, rec.Header())
	}

	if rec := preflight("/api/v1/appointments/cancel"); rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("owner routes must not be opened to browsers: %v", rec.Header())
	}
}
