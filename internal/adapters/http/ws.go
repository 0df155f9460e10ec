package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// UpdateSource hands out live session update subscriptions.
type UpdateSource interface {
	Subscribe(ctx context.Context) (<-chan domain.SessionUpdate, error)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// handleWebSocket streams every SessionUpdate to the client as JSON until
// either side goes away. Client frames are read only to notice the close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "live updates disabled"})
		return
	}

	log := observability.LoggerFromContext(r.Context())

	// subscribe before the handshake so nothing published after it is missed
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	updates, err := s.updates.Subscribe(ctx)
	if err != nil {
		internalError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Msg("websocket client connected")
	defer log.Info().Msg("websocket client disconnected")

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}
