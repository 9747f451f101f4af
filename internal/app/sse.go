package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/broker"
)

const keepAliveInterval = 30 * time.Second

// handleIdeaEvents streams the idea's event feed over SSE. The subscription
// lives exactly as long as the connection: it is registered before the
// connected event is sent and dropped when the client goes away.
func (s *HTTPServer) handleIdeaEvents(w http.ResponseWriter, r *http.Request, ideaID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming not supported", nil)
		return
	}

	if _, err := s.service.GetIdea(r.Context(), ideaID); err != nil {
		s.fail(w, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := s.service.Subscribe(ideaID)
	defer s.service.Unsubscribe(ideaID, events)

	writeSSE(w, broker.Event{Type: "connected", Data: map[string]any{"idea_id": ideaID}})
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event broker.Event) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
