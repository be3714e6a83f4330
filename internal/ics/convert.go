package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"dayline/internal/model"
	"dayline/internal/timeline"
)

const dayLayout = "2006-01-02"

// entryNamespace seeds deterministic entry IDs for feed items so a re-sync
// keeps the same IDs for the same occurrences.
var entryNamespace = uuid.MustParse("5b0f7c36-0d43-4b1e-9a57-3f5d8f4e2a10")

// maxSpanDays bounds how many day segments one occurrence may produce.
const maxSpanDays = 14

// ToRawEntries converts timed occurrences into timeline entries. All-day
// occurrences are skipped. Occurrences crossing midnight are split into one
// entry per day, each ending at 24:00 or starting at 00:00. Occurrences
// without a duration get no End, so the timeline default applies.
func ToRawEntries(occs []model.Occurrence, sourceID, color string) []model.RawEntry {
	out := make([]model.RawEntry, 0, len(occs))
	for _, o := range occs {
		if o.AllDay {
			continue
		}
		start := o.Start
		end := o.End.In(start.Location())

		if !end.After(start) {
			out = append(out, rawFromOccurrence(o, sourceID, color, start, "", 0))
			continue
		}

		for seg := 0; seg < maxSpanDays && end.After(start); seg++ {
			nextMidnight := time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, start.Location())
			endClock := "24:00"
			if !end.After(nextMidnight) {
				endClock = end.Format("15:04")
				if end.Equal(nextMidnight) {
					endClock = "24:00"
				}
			}
			out = append(out, rawFromOccurrence(o, sourceID, color, start, endClock, seg))
			start = nextMidnight
		}
	}
	return out
}

func rawFromOccurrence(o model.Occurrence, sourceID, color string, start time.Time, endClock string, seg int) model.RawEntry {
	key := fmt.Sprintf("%s|%s|%s|%d", sourceID, o.UID, o.InstanceKey, seg)
	return model.RawEntry{
		ID:          uuid.NewSHA1(entryNamespace, []byte(key)).String(),
		DayKey:      start.Format(dayLayout),
		Start:       start.Format("15:04"),
		End:         endClock,
		Title:       o.Summary,
		Location:    o.Location,
		Description: o.Description,
		Color:       color,
		SourceID:    sourceID,
	}
}

// Export renders an event's entries as a VCALENDAR, one VEVENT per entry,
// with wall-clock times interpreted in loc. Entries with unparseable times
// are left out.
func Export(ev model.Event, entries []model.RawEntry, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//dayline//timeline export//EN")
	cal.SetName(ev.Name)
	cal.SetXWRCalName(ev.Name)
	cal.SetXWRTimezone(loc.String())

	stamp := time.Now().UTC()
	for _, raw := range entries {
		e, err := timeline.NormalizeEntry(raw)
		if err != nil {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, e.DayKey, loc)
		if err != nil {
			continue
		}
		// Wall-clock minutes, so DST transition days keep their local times.
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, e.StartMinute, 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), 0, e.EndMinute, 0, 0, loc)
		if !end.After(start) {
			end = start
		}

		vev := cal.AddEvent(e.ID + "@dayline")
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(start)
		vev.SetEndAt(end)
		vev.SetSummary(e.Title)
		if e.Location != "" {
			vev.SetLocation(e.Location)
		}
		if e.Description != "" {
			vev.SetDescription(e.Description)
		}
		if e.Color != "" {
			vev.SetColor(e.Color)
		}
	}

	var b strings.Builder
	if err := cal.SerializeTo(&b); err != nil {
		return nil, fmt.Errorf("ics: serialize: %w", err)
	}
	return []byte(b.String()), nil
}
