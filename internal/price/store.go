package price

import (
	"maps"
	"sync"
	"time"

	"github.com/mtlprog/livefolio/internal/domain"
)

// Store keeps the latest tick per symbol. It is a mapping, not a history.
type Store struct {
	mu     sync.RWMutex
	latest map[string]domain.PriceTick
}

// NewStore creates an empty tick store.
func NewStore() *Store {
	return &Store{
		latest: make(map[string]domain.PriceTick),
	}
}

// Apply records tick unless a newer tick for the same symbol is already stored.
// Ticks with equal ReceivedAt are last-write-wins. Returns false when the tick was discarded.
func (s *Store) Apply(tick domain.PriceTick) bool {
	tick.Symbol = domain.NormalizeSymbol(tick.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.latest[tick.Symbol]; ok && tick.ReceivedAt.Before(current.ReceivedAt) {
		return false
	}
	s.latest[tick.Symbol] = tick
	return true
}

// Get returns the latest tick for symbol.
func (s *Store) Get(symbol string) (domain.PriceTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tick, ok := s.latest[domain.NormalizeSymbol(symbol)]
	return tick, ok
}

// Latest returns a copy of the symbol -> tick mapping.
func (s *Store) Latest() map[string]domain.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.latest)
}

// Retain drops every symbol not in keep and returns how many were dropped.
func (s *Store) Retain(keep map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.latest)
	maps.DeleteFunc(s.latest, func(symbol string, _ domain.PriceTick) bool {
		_, ok := keep[symbol]
		return !ok
	})
	return before - len(s.latest)
}

// LastReceivedAt returns the most recent ReceivedAt across all symbols.
func (s *Store) LastReceivedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for _, tick := range s.latest {
		if tick.ReceivedAt.After(last) {
			last = tick.ReceivedAt
		}
	}
	return last
}

// Len returns the number of symbols with a stored tick.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.latest)
}
