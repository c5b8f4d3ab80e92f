package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// handleEvents streams session events to a websocket client until either
// side closes. Client messages are ignored.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "chat")
		m, ok := g.sessions.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown chat "+name, "")
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		events, cancel := m.Subscribe(eventBuffer)
		defer cancel()

		// CloseRead drains client frames and cancels ctx when the peer
		// goes away.
		ctx := conn.CloseRead(r.Context())
		g.logger.Debug("event stream opened", "chat", name, "remote_addr", r.RemoteAddr)

		if err := writeEvent(ctx, conn, map[string]any{"type": "state", "state": m.State()}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "session closed")
					return
				}
				if err := writeEvent(ctx, conn, ev); err != nil {
					g.logger.Debug("event stream closed", "chat", name, "error", err)
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
