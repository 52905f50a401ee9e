package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates an HTTP server with all routes configured. gatherer may be nil to
// disable /metrics.
func NewServer(port string, handler *Handler, gatherer prometheus.Gatherer, adminAPIKey string) *http.Server {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     newMux(handler, gatherer, adminAPIKey),
		ReadTimeout: 15 * time.Second,
		// Streams set their own per-message write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(handler.Shutdown)
	return srv
}

func newMux(handler *Handler, gatherer prometheus.Gatherer, adminAPIKey string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/valuation", handler.GetValuation)
	mux.HandleFunc("GET /api/v1/valuation/stream", handler.StreamValuations)
	mux.HandleFunc("GET /api/v1/holdings", handler.GetHoldings)
	mux.HandleFunc("GET /api/v1/health", handler.GetHealth)

	refreshHandler := http.HandlerFunc(handler.RefreshHoldings)
	if adminAPIKey != "" {
		mux.Handle("POST /api/v1/holdings/refresh", requireAuth(adminAPIKey, refreshHandler))
	} else {
		mux.Handle("POST /api/v1/holdings/refresh", refreshHandler)
	}

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
