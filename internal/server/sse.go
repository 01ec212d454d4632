package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"studylm/internal/chat"
)

// handleChatStream serves the SSE side of a chat. It opens with a
// connection event, then forwards queued events until a done event, the
// idle timeout, or the client going away.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, chatID string) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, chat.Event{Connection: "established"})
	if err := rc.Flush(); err != nil {
		return
	}

	events := s.app.ChatEvents(chatID)
	idle := time.NewTimer(s.sseIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
			writeEvent(w, chat.Event{Error: "Stream timeout or error occurred"})
			rc.Flush()
			return
		case ev := <-events:
			writeEvent(w, ev)
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Done {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.sseIdleTimeout)
		}
	}
}

func writeEvent(w http.ResponseWriter, ev chat.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
