package holdings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/metrics"
)

// ManualRefreshInterval is the minimum spacing between user-triggered refreshes.
const ManualRefreshInterval = 5 * time.Second

var (
	// ErrInvalidSnapshot is returned when fetched holdings fail validation. The previous
	// snapshot is kept.
	ErrInvalidSnapshot = errors.New("invalid holdings snapshot")
	// ErrRefreshThrottled is returned by RequestRefresh when called too often.
	ErrRefreshThrottled = errors.New("holdings refresh throttled")
)

// Sink receives every accepted snapshot.
type Sink interface {
	SetSnapshot(snapshot domain.Snapshot)
}

// Store holds the current holdings snapshot and replaces it wholesale on refresh.
type Store struct {
	provider Provider
	sink     Sink
	metrics  *metrics.Recorder
	limiter  *rate.Limiter
	now      func() time.Time

	refreshMu sync.Mutex // one fetch at a time

	mu      sync.RWMutex
	current domain.Snapshot
}

// NewStore creates a store that publishes accepted snapshots to sink. rec may be nil.
func NewStore(provider Provider, sink Sink, rec *metrics.Recorder) *Store {
	return &Store{
		provider: provider,
		sink:     sink,
		metrics:  rec,
		limiter:  rate.NewLimiter(rate.Every(ManualRefreshInterval), 1),
		now:      time.Now,
	}
}

// Current returns the latest accepted snapshot, zero if none yet.
func (s *Store) Current() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh fetches holdings and, if valid, replaces the snapshot. On failure the previous
// snapshot stays in place and the error is returned.
func (s *Store) Refresh(ctx context.Context) (domain.Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	holdings, err := s.provider.FetchHoldings(ctx)
	if err != nil {
		s.metrics.HoldingsRefreshed("error")
		return domain.Snapshot{}, fmt.Errorf("fetching holdings: %w", err)
	}

	if err := Validate(holdings); err != nil {
		s.metrics.HoldingsRefreshed("invalid")
		return domain.Snapshot{}, err
	}

	snapshot := domain.Snapshot{
		Holdings: lo.Map(holdings, func(h domain.Holding, _ int) domain.Holding {
			h.Symbol = domain.NormalizeSymbol(h.Symbol)
			return h
		}),
		TakenAt: s.now(),
	}

	s.mu.Lock()
	s.current = snapshot
	s.mu.Unlock()

	s.sink.SetSnapshot(snapshot)
	s.metrics.HoldingsRefreshed("ok")
	slog.Debug("HoldingsStore: snapshot replaced", "holdings", len(snapshot.Holdings))
	return snapshot, nil
}

// RequestRefresh is Refresh for user-triggered calls, limited to one per ManualRefreshInterval.
func (s *Store) RequestRefresh(ctx context.Context) (domain.Snapshot, error) {
	if !s.limiter.Allow() {
		s.metrics.HoldingsRefreshed("throttled")
		return domain.Snapshot{}, ErrRefreshThrottled
	}
	return s.Refresh(ctx)
}

// Validate rejects a holdings list containing an empty symbol or a negative amount.
func Validate(holdings []domain.Holding) error {
	bad, found := lo.Find(holdings, func(h domain.Holding) bool {
		return domain.NormalizeSymbol(h.Symbol) == "" || h.Amount.IsNegative()
	})
	if !found {
		return nil
	}
	if domain.NormalizeSymbol(bad.Symbol) == "" {
		return fmt.Errorf("%w: holding with empty symbol", ErrInvalidSnapshot)
	}
	return fmt.Errorf("%w: %s has negative amount %s", ErrInvalidSnapshot, bad.Symbol, bad.Amount)
}
