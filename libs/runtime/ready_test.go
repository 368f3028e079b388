package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name   string
		checks []ReadyCheck
		want   int
	}{
		{name: "no checks", want: http.StatusOK},
		{name: "all pass", checks: []ReadyCheck{{Name: "db", Check: passing}}, want: http.StatusOK},
		{name: "required fails", checks: []ReadyCheck{{Name: "db", Check: failing}}, want: http.StatusServiceUnavailable},
		{name: "optional fails", checks: []ReadyCheck{{Name: "db", Check: passing}, {Name: "redis", Check: failing, Optional: true}}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewBaseMuxWithReady(tt.checks...)
			rw := httptest.NewRecorder()
			mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rw.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rw.Code)
			}
			var report readyReport
			if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode report: %v", err)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Fatalf("expected %d check entries, got %d", len(tt.checks), len(report.Checks))
			}
		})
	}
}
