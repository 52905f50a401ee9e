package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/holdings"
)

// Valuations is the read side of the reconciliation engine.
type Valuations interface {
	Result() domain.ValuationResult
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.ValuationResult, func())
}

// FeedStatus reports feed health as seen by the staleness monitor.
type FeedStatus interface {
	Health() domain.Health
	TransportHealth() domain.Health
	LastTickAt() time.Time
}

// HoldingsRefresher triggers a user-requested holdings refresh.
type HoldingsRefresher interface {
	RequestRefresh(ctx context.Context) (domain.Snapshot, error)
}

// FeedLease keeps the shared price feed connected while held.
type FeedLease interface {
	Acquire(ctx context.Context) error
	Release()
}

// Handler provides HTTP endpoints for the valuation API.
type Handler struct {
	valuations Valuations
	feed       FeedStatus
	holdings   HoldingsRefresher
	lease      FeedLease // optional
	upgrader   websocket.Upgrader

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewHandler creates a new API handler. lease may be nil when the feed is connected for the
// whole process lifetime.
func NewHandler(valuations Valuations, feed FeedStatus, refresher HoldingsRefresher, lease FeedLease) *Handler {
	return &Handler{
		valuations: valuations,
		feed:       feed,
		holdings:   refresher,
		lease:      lease,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		shutdown: make(chan struct{}),
	}
}

// Shutdown ends all open valuation streams.
func (h *Handler) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// GetValuation handles GET /api/v1/valuation.
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.valuations.Result())
}

// GetHoldings handles GET /api/v1/holdings.
func (h *Handler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	snapshot := h.valuations.Snapshot()
	if snapshot.IsZero() {
		writeError(w, http.StatusNotFound, "no holdings snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type healthResponse struct {
	FeedHealth      domain.Health `json:"feedHealth"`
	TransportHealth domain.Health `json:"transportHealth"`
	LastTickAt      *time.Time    `json:"lastTickAt"`
	SnapshotAt      *time.Time    `json:"snapshotAt"`
	Sequence        uint64        `json:"sequence"`
	LiveHoldings    int           `json:"liveHoldings"`
	Holdings        int           `json:"holdings"`
}

// GetHealth handles GET /api/v1/health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.valuations.Result()
	writeJSON(w, http.StatusOK, healthResponse{
		FeedHealth:      h.feed.Health(),
		TransportHealth: h.feed.TransportHealth(),
		LastTickAt:      timePtr(h.feed.LastTickAt()),
		SnapshotAt:      timePtr(result.SnapshotAt),
		Sequence:        result.Sequence,
		LiveHoldings:    result.LiveCount(),
		Holdings:        len(result.PerHolding),
	})
}

// RefreshHoldings handles POST /api/v1/holdings/refresh.
func (h *Handler) RefreshHoldings(w http.ResponseWriter, r *http.Request) {
	_, err := h.holdings.RequestRefresh(r.Context())
	switch {
	case errors.Is(err, holdings.ErrRefreshThrottled):
		w.Header().Set("Retry-After", strconv.Itoa(int(holdings.ManualRefreshInterval.Seconds())))
		writeError(w, http.StatusTooManyRequests, "refresh requested too often")
		return
	case errors.Is(err, holdings.ErrInvalidSnapshot):
		slog.Warn("holdings refresh rejected", "error", err)
		writeError(w, http.StatusBadGateway, "holdings provider returned an invalid snapshot")
		return
	case err != nil:
		slog.Error("holdings refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "holdings refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, h.valuations.Result())
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
