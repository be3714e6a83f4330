package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appLog "dayline/internal/log"
	"dayline/internal/model"
)

const streamHeartbeat = 25 * time.Second

// handleChanges streams "refetch" signals for one event as Server-Sent
// Events. Each store mutation touching the event, and every external file
// change, produces one "change" event.
//
// GET /api/events/{id}/changes
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changes, cancel := s.store.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	appLog.Debug("change stream opened", "event", ev.ID)
	defer appLog.Debug("change stream closed", "event", ev.ID)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !relevant(c, ev.ID) {
				continue
			}
			data, err := json.Marshal(c)
			if err != nil {
				appLog.Error("change stream: marshal failed", err)
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// relevant reports whether c may affect eventID. Signals without an event
// (external file edits) affect everything.
func relevant(c model.Change, eventID string) bool {
	return c.EventID == "" || c.EventID == eventID
}
