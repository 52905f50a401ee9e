package feed

import (
	"context"
	"sync"

	"github.com/mtlprog/livefolio/internal/domain"
)

// Shared is a reference-counted feed: the first Acquire connects, the last Release disconnects.
// A Connection is terminal once disconnected, so each new first Acquire builds a fresh one.
type Shared struct {
	newConn func() *Connection

	mu   sync.Mutex
	conn *Connection
	refs int
}

// NewShared creates a shared feed that builds connections with newConn.
func NewShared(newConn func() *Connection) *Shared {
	return &Shared{newConn: newConn}
}

// Acquire takes a reference, connecting on the first one. The connection outlives ctx;
// only the matching Release ends it.
func (s *Shared) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		conn := s.newConn()
		if err := conn.Connect(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		s.conn = conn
	}
	s.refs++
	return nil
}

// Release drops a reference, disconnecting when none remain. Extra releases are ignored.
func (s *Shared) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.conn.Disconnect()
		s.conn = nil
	}
}

// Refs returns the number of outstanding references.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// State returns the transport health of the current connection, or offline when none is held.
func (s *Shared) State() domain.Health {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return domain.HealthOffline
	}
	return conn.State()
}
