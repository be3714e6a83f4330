package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	appLog "dayline/internal/log"
	"dayline/internal/model"
)

const (
	// MinutesPerDay is the exclusive upper bound of a day's minute range.
	MinutesPerDay = 24 * 60

	// DefaultDurationMinutes is assumed for entries stored without an end.
	DefaultDurationMinutes = 60
)

var ErrBadClock = errors.New("timeline: invalid clock value")

// ParseClock parses a wall-clock "HH:MM" (or "H:MM", "HH:MM:SS") into
// minutes since midnight. "24:00" is accepted as end of day.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	if minute < 0 {
		minute = 0
	}
	if minute > MinutesPerDay {
		minute = MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// NormalizeEntry converts a stored entry into the engine's form, applying
// the default duration when End is absent. Start is clamped to the day and
// End to midnight. An End that parses but is not after Start is kept as-is;
// the layout engine handles that case.
func NormalizeEntry(raw model.RawEntry) (model.TimelineEntry, error) {
	start, err := ParseClock(raw.Start)
	if err != nil {
		return model.TimelineEntry{}, fmt.Errorf("entry %s start: %w", raw.ID, err)
	}
	if start > MinutesPerDay-1 {
		start = MinutesPerDay - 1
	}

	end := start + DefaultDurationMinutes
	if strings.TrimSpace(raw.End) != "" {
		end, err = ParseClock(raw.End)
		if err != nil {
			return model.TimelineEntry{}, fmt.Errorf("entry %s end: %w", raw.ID, err)
		}
	}
	if end > MinutesPerDay {
		end = MinutesPerDay
	}

	return model.TimelineEntry{
		ID:          raw.ID,
		EventID:     raw.EventID,
		DayKey:      raw.DayKey,
		StartMinute: start,
		EndMinute:   end,
		Title:       raw.Title,
		Location:    raw.Location,
		Description: raw.Description,
		Color:       raw.Color,
	}, nil
}

// NormalizeAll normalizes every entry, skipping (and logging) those whose
// times cannot be parsed.
func NormalizeAll(raws []model.RawEntry) []model.TimelineEntry {
	out := make([]model.TimelineEntry, 0, len(raws))
	for _, r := range raws {
		e, err := NormalizeEntry(r)
		if err != nil {
			appLog.Warn("timeline: skipping entry with bad time", "id", r.ID, "day", r.DayKey, "err", err)
			continue
		}
		out = append(out, e)
	}
	return out
}
