package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamValuations handles GET /api/v1/valuation/stream. It upgrades to a websocket and pushes
// the current valuation followed by every recomputed one. Each client holds a feed lease for
// the lifetime of the stream.
func (h *Handler) StreamValuations(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	log := slog.With("client", clientID)

	if h.lease != nil {
		if err := h.lease.Acquire(r.Context()); err != nil {
			log.Error("stream: feed unavailable", "error", err)
			closeWith(conn, websocket.CloseInternalServerErr, "price feed unavailable")
			return
		}
		defer h.lease.Release()
	}

	updates, cancel := h.valuations.Subscribe()
	defer cancel()

	log.Info("stream: client connected", "remote", r.RemoteAddr)
	defer log.Info("stream: client disconnected")

	// Clients only send control frames; reading is needed to process them and notice a close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-h.shutdown:
			closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case result, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(result); err != nil {
				log.Debug("stream: write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				log.Debug("stream: ping failed", "error", err)
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
