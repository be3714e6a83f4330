package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dayline/internal/docimport"
	"dayline/internal/ics"
	appLog "dayline/internal/log"
	"dayline/internal/model"
)

// maxBodyBytes bounds JSON and imported text bodies.
const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListEvents())
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	created, err := s.store.CreateEvent(ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEvent(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListEntries returns an event's raw entries; ?day= narrows to one
// day.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Entries(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if day := r.URL.Query().Get("day"); day != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.DayKey == day {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var e model.RawEntry
	if err := decodeBody(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	e.EventID = r.PathValue("id")
	e.SourceID = ""
	created, err := s.store.AddEntry(e)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var e model.RawEntry
	if err := decodeBody(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	e.ID = r.PathValue("id")
	updated, err := s.store.UpdateEntry(e)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEntry(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importResponse struct {
	Added   []model.RawEntry `json:"added"`
	Skipped []skippedLine    `json:"skipped,omitempty"`
}

type skippedLine struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// handleImportText adds every schedule line found in a plain-text body
// (text already extracted from an uploaded document) to one event day.
func (s *Server) handleImportText(w http.ResponseWriter, r *http.Request) {
	ev, day, ok := s.eventDay(w, r)
	if !ok {
		return
	}
	eventID := ev.ID
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	drafts := docimport.Parse(string(body))
	resp := importResponse{Added: []model.RawEntry{}}
	for i, raw := range docimport.ToRawEntries(drafts, eventID, day) {
		added, err := s.store.AddEntry(raw)
		if err != nil {
			resp.Skipped = append(resp.Skipped, skippedLine{Line: drafts[i].Line, Error: err.Error()})
			continue
		}
		resp.Added = append(resp.Added, added)
	}
	appLog.Info("text import", "event", eventID, "day", day, "found", len(drafts), "added", len(resp.Added))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	entries, err := s.store.Entries(ev.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	data, err := ics.Export(ev, entries, resolveLocation(ev.Timezone, s.cfg.Timezone))
	if err != nil {
		appLog.Error("ics export failed", err, "event", ev.ID)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, ev.ID))
	_, _ = w.Write(data)
}
