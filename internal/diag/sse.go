package diag

import (
	"fmt"
	"net/http"
)

// handleShadeStream serves GET /api/shades/stream: an SSE feed of every
// shade-state change and fault report, adapted from
// server/sse.go's handleStream subscribe/broadcast loop — simplified
// here since events are structured JSON, not raw terminal bytes, so
// there is no base64 framing or screen-redraw catch-up buffer to carry
// over.
func (s *Server) handleShadeStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
