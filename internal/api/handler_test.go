package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/holdings"
	"github.com/mtlprog/livefolio/internal/metrics"
	"github.com/mtlprog/livefolio/internal/valuation"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockFeedStatus struct {
	health     domain.Health
	transport  domain.Health
	lastTickAt time.Time
}

func (m *mockFeedStatus) Health() domain.Health          { return m.health }
func (m *mockFeedStatus) TransportHealth() domain.Health { return m.transport }
func (m *mockFeedStatus) LastTickAt() time.Time          { return m.lastTickAt }

type mockRefresher struct {
	calls atomic.Int32
	err   error
	apply func()
}

func (m *mockRefresher) RequestRefresh(ctx context.Context) (domain.Snapshot, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.Snapshot{}, m.err
	}
	if m.apply != nil {
		m.apply()
	}
	return domain.Snapshot{TakenAt: testNow}, nil
}

type mockLease struct {
	acquired atomic.Int32
	released atomic.Int32
	err      error
}

func (m *mockLease) Acquire(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.acquired.Add(1)
	return nil
}

func (m *mockLease) Release() { m.released.Add(1) }

func btcSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Holdings: []domain.Holding{{
			Symbol:        "btc",
			Amount:        decimal.NewFromInt(2),
			BaselineValue: decimal.NewFromInt(100000),
		}},
		TakenAt: testNow,
	}
}

func newTestHandler(engine *valuation.Engine, refresher *mockRefresher, lease FeedLease) *Handler {
	feed := &mockFeedStatus{health: domain.HealthLive, transport: domain.HealthLive, lastTickAt: testNow}
	if refresher == nil {
		refresher = &mockRefresher{}
	}
	return NewHandler(engine, feed, refresher, lease)
}

func TestGetValuation(t *testing.T) {
	engine := valuation.NewEngine(nil)
	engine.SetSnapshot(btcSnapshot())
	engine.SetHealth(domain.HealthLive)
	engine.OnTick(domain.PriceTick{Symbol: "btc", Price: decimal.NewFromInt(51000), ReceivedAt: testNow})

	mux := newMux(newTestHandler(engine, nil, nil), nil, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/valuation", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var got domain.ValuationResult
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.TotalValue.Equal(decimal.NewFromInt(102000)) {
		t.Errorf("totalValue = %s, want 102000", got.TotalValue)
	}
	if got.FeedHealth != domain.HealthLive {
		t.Errorf("feedHealth = %s, want live", got.FeedHealth)
	}
	if len(got.PerHolding) != 1 || !got.PerHolding[0].IsLive {
		t.Errorf("perHolding = %+v, want one live holding", got.PerHolding)
	}
}

func TestGetHoldings(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   *domain.Snapshot
		wantStatus int
	}{
		{name: "no snapshot yet", wantStatus: http.StatusNotFound},
		{name: "snapshot", snapshot: func() *domain.Snapshot { s := btcSnapshot(); return &s }(), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := valuation.NewEngine(nil)
			if tt.snapshot != nil {
				engine.SetSnapshot(*tt.snapshot)
			}
			mux := newMux(newTestHandler(engine, nil, nil), nil, "")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/holdings", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetHealth(t *testing.T) {
	engine := valuation.NewEngine(nil)
	engine.SetSnapshot(btcSnapshot())
	engine.SetHealth(domain.HealthDegraded)

	feed := &mockFeedStatus{health: domain.HealthDegraded, transport: domain.HealthDegraded}
	handler := NewHandler(engine, feed, &mockRefresher{}, nil)

	w := httptest.NewRecorder()
	newMux(handler, nil, "").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["feedHealth"] != "degraded" {
		t.Errorf("feedHealth = %v, want degraded", got["feedHealth"])
	}
	if got["lastTickAt"] != nil {
		t.Errorf("lastTickAt = %v, want null before any tick", got["lastTickAt"])
	}
	if got["snapshotAt"] == nil {
		t.Error("snapshotAt should be set")
	}
	if got["holdings"] != float64(1) || got["liveHoldings"] != float64(0) {
		t.Errorf("holdings = %v live = %v, want 1 and 0", got["holdings"], got["liveHoldings"])
	}
}

func TestRefreshHoldings(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "throttled", err: holdings.ErrRefreshThrottled, wantStatus: http.StatusTooManyRequests},
		{name: "invalid snapshot", err: fmt.Errorf("validate: %w", holdings.ErrInvalidSnapshot), wantStatus: http.StatusBadGateway},
		{name: "provider failure", err: errors.New("connection refused"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refresher := &mockRefresher{err: tt.err}
			mux := newMux(newTestHandler(valuation.NewEngine(nil), refresher, nil), nil, "")

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/holdings/refresh", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if refresher.calls.Load() != 1 {
				t.Errorf("refresh calls = %d, want 1", refresher.calls.Load())
			}
			if tt.wantStatus == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "5" {
				t.Errorf("Retry-After = %q, want 5", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRefreshHoldingsReturnsRecomputedValuation(t *testing.T) {
	engine := valuation.NewEngine(nil)
	refresher := &mockRefresher{apply: func() { engine.SetSnapshot(btcSnapshot()) }}
	mux := newMux(newTestHandler(engine, refresher, nil), nil, "")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/holdings/refresh", nil))

	var got domain.ValuationResult
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.PerHolding) != 1 {
		t.Errorf("perHolding = %d entries, want 1", len(got.PerHolding))
	}
}

func TestRefreshHoldingsRequiresAuthWhenKeySet(t *testing.T) {
	refresher := &mockRefresher{}
	mux := newMux(newTestHandler(valuation.NewEngine(nil), refresher, nil), nil, "secret-key")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/holdings/refresh", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/holdings/refresh", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200", w.Code)
	}
	if refresher.calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls.Load())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	engine := valuation.NewEngine(rec)
	engine.OnTick(domain.PriceTick{Symbol: "btc", Price: decimal.NewFromInt(1), ReceivedAt: testNow})

	mux := newMux(newTestHandler(engine, nil, nil), reg, "")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "livefolio_feed_ticks_applied_total 1") {
		t.Errorf("metrics output missing applied tick counter:\n%s", w.Body.String())
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	mux := newMux(newTestHandler(valuation.NewEngine(nil), nil, nil), nil, "")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func dialStream(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/valuation/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) domain.ValuationResult {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r domain.ValuationResult
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatalf("read: %v", err)
	}
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamValuations(t *testing.T) {
	engine := valuation.NewEngine(nil)
	engine.SetSnapshot(btcSnapshot())
	engine.SetHealth(domain.HealthLive)
	lease := &mockLease{}
	handler := newTestHandler(engine, nil, lease)

	server := httptest.NewServer(newMux(handler, nil, ""))
	defer server.Close()

	conn := dialStream(t, server)
	first := readResult(t, conn)
	if first.Sequence != engine.Result().Sequence {
		t.Errorf("initial sequence = %d, want %d", first.Sequence, engine.Result().Sequence)
	}
	if got := lease.acquired.Load(); got != 1 {
		t.Errorf("leases acquired = %d, want 1", got)
	}

	engine.OnTick(domain.PriceTick{Symbol: "btc", Price: decimal.NewFromInt(51000), ReceivedAt: testNow})
	next := readResult(t, conn)
	if !next.TotalValue.Equal(decimal.NewFromInt(102000)) {
		t.Errorf("streamed totalValue = %s, want 102000", next.TotalValue)
	}
	if next.Sequence <= first.Sequence {
		t.Errorf("sequence did not advance: %d then %d", first.Sequence, next.Sequence)
	}

	conn.Close()
	waitFor(t, "lease release", func() bool { return lease.released.Load() == 1 })
}

func TestStreamValuationsFeedUnavailable(t *testing.T) {
	lease := &mockLease{err: errors.New("feed connection closed")}
	handler := newTestHandler(valuation.NewEngine(nil), nil, lease)

	server := httptest.NewServer(newMux(handler, nil, ""))
	defer server.Close()

	conn := dialStream(t, server)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("read error = %v, want internal server close", err)
	}
	if got := lease.released.Load(); got != 0 {
		t.Errorf("released = %d, want 0 when acquire failed", got)
	}
}

func TestStreamValuationsEndsOnShutdown(t *testing.T) {
	lease := &mockLease{}
	handler := newTestHandler(valuation.NewEngine(nil), nil, lease)

	server := httptest.NewServer(newMux(handler, nil, ""))
	defer server.Close()

	conn := dialStream(t, server)
	defer conn.Close()
	readResult(t, conn)

	handler.Shutdown()
	handler.Shutdown()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want going away close", err)
	}
	waitFor(t, "lease release", func() bool { return lease.released.Load() == 1 })
}
