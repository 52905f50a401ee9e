package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mtlprog/livefolio/internal/valuation"
)

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{name: "valid token", header: "Bearer secret-key", wantStatus: http.StatusOK, wantCalled: true},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer wrong-key", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic secret-key", wantStatus: http.StatusUnauthorized},
		{name: "bare token", header: "secret-key", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/holdings/refresh", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			requireAuth("secret-key", next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("next called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestNewServerRoutes(t *testing.T) {
	handler := newTestHandler(valuation.NewEngine(nil), nil, nil)
	srv := NewServer("0", handler, nil, "")

	tests := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/api/v1/valuation", http.StatusOK},
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodPost, "/api/v1/valuation", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/holdings/refresh", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
