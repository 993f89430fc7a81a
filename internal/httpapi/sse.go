package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/biokg/explorer/internal/stream"
)

// streamEvents drains events and writes each as "event: NAME\ndata: JSON\n\n",
// flushing after every write so delta text reaches the client as it is
// produced rather than buffering until the handler returns. review is
// called on the done event before it is written, giving callers a chance to
// patch its payload (e.g. folding in a reviewer score).
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan stream.Event, review func(stream.DoneData) stream.DoneData) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Name == stream.EventDone && review != nil {
				ev.Data = review(ev.Data.(stream.DoneData))
			}
			if !s.writeEvent(w, r, ev) {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, r *http.Request, ev stream.Event) bool {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "httpapi: failed to marshal sse event", "event", ev.Name, "error", err)
		return true
	}
	_, err = w.Write([]byte("event: " + string(ev.Name) + "\ndata: " + string(data) + "\n\n"))
	return err == nil
}
