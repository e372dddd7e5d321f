package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth happens in middleware; cross-origin canvas clients are
	// expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CanvasEvents streams the canvas's mutation feed over a websocket.
// Each message is one JSON-encoded mutation; clients reconcile their
// optimistic state against the stream and refetch on gaps.
func (h *Handlers) CanvasEvents(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if _, err := h.Store.GetCanvas(r.Context(), canvasID); err != nil {
		respondStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Warn().Err(err).Str("canvas", canvasID).Msg("Websocket upgrade failed")
		return
	}

	events, cancel := h.Bus.Subscribe(canvasID)
	defer cancel()
	log.Info().Str("canvas", canvasID).Int("subscribers", h.Bus.SubscriberCount(canvasID)).Msg("Canvas subscriber connected")

	// Reader goroutine: we never expect client messages, but reading
	// is what surfaces close frames and connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case mut, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(mut); err != nil {
				log.Debug().Err(err).Str("canvas", canvasID).Msg("Canvas subscriber write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
