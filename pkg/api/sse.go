package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/psaab/slotstrike/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// eventStreamHandler streams candidate and alert records via SSE.
// Supports ?category=, ?strategy= and ?source= filters.
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.eventBuf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	q := r.URL.Query()
	filter := logging.RecordFilter{
		Category: q.Get("category"),
		Strategy: q.Get("strategy"),
		Source:   q.Get("source"),
	}

	sub := s.eventBuf.Subscribe(128)
	defer sub.Close()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			if !filter.Matches(&rec) {
				continue
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			writeSSEEvent(w, fmt.Sprintf("%d", rec.Seq), rec.Category, string(data))
		}
	}
}
