package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func terminal(ev domain.ExperimentEvent) bool {
	return ev.Type == domain.EventExperimentCompleted || ev.Type == domain.EventExperimentFailed
}

// SubscribeEvents handles GET /experiments/{id}/events (SSE).
// The stream ends when the experiment completes or fails.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	if _, ok := s.load(w, r); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	events, cancel := s.Service.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: client subscribed", "experiment_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "experiment_id", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
			if terminal(ev) {
				return
			}
		}
	}
}

const wsWriteTimeout = 10 * time.Second

// StreamWebSocket handles GET /experiments/{id}/ws.
// Events are sent as JSON text frames; the socket is closed normally when the
// experiment completes or fails.
func (s *Server) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.load(w, r); !ok {
		return
	}
	id := chi.URLParam(r, "id")

	// Subscribe before the handshake completes so no event is missed.
	events, cancel := s.Service.Subscribe(id)
	defer cancel()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	// The reader only detects the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Warn("Failed to write WebSocket JSON", "error", err)
				return
			}
			if terminal(ev) {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type))
				_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
		}
	}
}
