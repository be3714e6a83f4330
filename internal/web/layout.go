package web

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"dayline/internal/model"
	"dayline/internal/timeline"
)

const (
	layoutCacheTTL = 30 * time.Second
	// layoutCacheMax bounds the cache; it is cleared when full.
	layoutCacheMax = 256
)

type layoutKey struct {
	eventID string
	day     string
	pph     float64
}

type layoutCacheEntry struct {
	resp      layoutResponse
	rev       uint64
	updatedAt time.Time
}

// layoutItem pairs a normalized entry with its computed block.
type layoutItem struct {
	Entry model.TimelineEntry `json:"entry"`
	Block model.Block         `json:"block"`
	Start string              `json:"start"`
	End   string              `json:"end"`
}

type layoutResponse struct {
	EventID       string       `json:"event_id"`
	Day           string       `json:"day"`
	PixelsPerHour float64      `json:"pixels_per_hour"`
	Height        float64      `json:"height"`
	Items         []layoutItem `json:"items"`
}

// eventDay resolves the {id} and {day} path values, writing the error
// response itself when they do not name a day of a stored event.
func (s *Server) eventDay(w http.ResponseWriter, r *http.Request) (model.Event, string, bool) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return model.Event{}, "", false
	}
	day := r.PathValue("day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid day %q", day))
		return model.Event{}, "", false
	}
	if day < ev.StartDate || day > ev.EndDate {
		writeError(w, http.StatusNotFound, fmt.Sprintf("day %s is outside event %s..%s", day, ev.StartDate, ev.EndDate))
		return model.Event{}, "", false
	}
	return ev, day, true
}

// pixelsPerHour reads ?pph=, falling back to the configured zoom for
// missing, non-positive or non-finite values.
func (s *Server) pixelsPerHour(r *http.Request) float64 {
	def := float64(timeline.DefaultPixelsPerHour)
	if s.cfg != nil && s.cfg.PixelsPerHour > 0 {
		def = s.cfg.PixelsPerHour
	}
	pph := parseFloatDefault(r.URL.Query().Get("pph"), def)
	if pph <= 0 || math.IsNaN(pph) || math.IsInf(pph, 0) {
		return def
	}
	return pph
}

// dayLayout returns the laid out day, from cache when the store has not
// changed since it was computed.
func (s *Server) dayLayout(eventID, day string, pph float64) (layoutResponse, error) {
	key := layoutKey{eventID: eventID, day: day, pph: pph}
	rev := s.store.Revision()
	now := s.now()

	s.layoutMu.Lock()
	if c, ok := s.layoutCache[key]; ok && c.rev == rev && now.Sub(c.updatedAt) < layoutCacheTTL {
		s.layoutMu.Unlock()
		return c.resp, nil
	}
	s.layoutMu.Unlock()

	entries, err := s.store.EntriesForDay(eventID, day)
	if err != nil {
		return layoutResponse{}, err
	}
	layout := timeline.Compute(entries, pph)

	resp := layoutResponse{
		EventID:       eventID,
		Day:           day,
		PixelsPerHour: pph,
		Height:        24 * pph,
		Items:         make([]layoutItem, 0, len(entries)),
	}
	for _, e := range entries {
		b, ok := layout[e.ID]
		if !ok {
			continue
		}
		resp.Items = append(resp.Items, layoutItem{
			Entry: e,
			Block: b,
			Start: timeline.FormatClock(e.StartMinute),
			End:   timeline.FormatClock(e.EndMinute),
		})
	}

	s.layoutMu.Lock()
	if len(s.layoutCache) >= layoutCacheMax {
		clear(s.layoutCache)
	}
	s.layoutCache[key] = layoutCacheEntry{resp: resp, rev: rev, updatedAt: now}
	s.layoutMu.Unlock()
	return resp, nil
}

// handleLayout returns every entry of one event day with its block.
//
// GET /api/events/{id}/days/{day}/layout?pph=80
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	ev, day, ok := s.eventDay(w, r)
	if !ok {
		return
	}
	resp, err := s.dayLayout(ev.ID, day, s.pixelsPerHour(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
