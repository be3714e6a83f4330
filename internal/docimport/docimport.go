// Package docimport pulls schedule lines ("2:00 PM - 2:30 PM Ceremony") out
// of text extracted from uploaded run-of-show documents.
package docimport

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dayline/internal/model"
)

// Draft is one schedule line found in a document. Start and End are
// 24-hour "HH:MM"; End is empty when the line gives only a start.
type Draft struct {
	Start    string
	End      string
	Title    string
	Location string
	Line     int // 1-based line number in the source text
}

const (
	// A time needs either minutes or a meridiem so "Table 5" is not a time.
	timePat = `(\d{1,2})(?::(\d{2}))?\s*([ap]m\b|[ap]\.m\.)?`
	sepPat  = `\s*(?:-|–|—|to|until)\s*`
)

var (
	// "2:00 PM - 3:00 PM Ceremony", "14:00 – Ceremony", "• 2pm: Photos"
	timeFirstRe = regexp.MustCompile(`(?i)^\s*(?:[-*•·]\s*)?` + timePat + `(?:` + sepPat + timePat + `)?\s*(?:[-–—:|.]\s*)?(.*)$`)
	// "Ceremony: 2:00pm", "First dance - 8:15 PM to 8:30 PM"
	timeLastRe = regexp.MustCompile(`(?i)^\s*(?:[-*•·]\s*)?(.+?)\s*(?:[-–—:|@,]|\bat\b)\s*` + timePat + `(?:` + sepPat + timePat + `)?\s*$`)
	locationRe = regexp.MustCompile(`\s+@\s+(.+)$`)
)

type clock struct {
	hour, minute int
	meridiem     string // "am", "pm" or ""
	hasMinutes   bool
}

func parseClock(h, m, mer string) (clock, bool) {
	if h == "" {
		return clock{}, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return clock{}, false
	}
	c := clock{hour: hour, hasMinutes: m != ""}
	if m != "" {
		c.minute, _ = strconv.Atoi(m)
	}
	mer = strings.ToLower(strings.ReplaceAll(mer, ".", ""))
	c.meridiem = mer
	if !c.hasMinutes && c.meridiem == "" {
		return clock{}, false
	}
	if c.minute > 59 {
		return clock{}, false
	}
	if c.meridiem != "" && (c.hour < 1 || c.hour > 12) {
		return clock{}, false
	}
	if c.meridiem == "" && c.hour > 24 {
		return clock{}, false
	}
	return c, true
}

// minutes converts to minutes since midnight.
func (c clock) minutes() int {
	h := c.hour
	switch c.meridiem {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h != 12 {
			h += 12
		}
	}
	return h*60 + c.minute
}

func format(min int) string {
	if min > 24*60 {
		min = 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Parse scans text line by line and returns every schedule line found, in
// document order. Lines without a recognizable time are ignored.
func Parse(text string) []Draft {
	var out []Draft
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if d, ok := parseLine(line); ok {
			d.Line = n
			out = append(out, d)
		}
	}
	return out
}

func parseLine(line string) (Draft, bool) {
	if m := timeFirstRe.FindStringSubmatch(line); m != nil {
		if _, ok := parseClock(m[1], m[2], m[3]); ok {
			// Line leads with a time; never reread it as "title - time".
			return build(m[1:4], m[4:7], m[7])
		}
	}
	if m := timeLastRe.FindStringSubmatch(line); m != nil {
		if d, ok := build(m[2:5], m[5:8], m[1]); ok {
			return d, true
		}
	}
	return Draft{}, false
}

func build(startParts, endParts []string, title string) (Draft, bool) {
	start, ok := parseClock(startParts[0], startParts[1], startParts[2])
	if !ok {
		return Draft{}, false
	}
	title = strings.Trim(strings.TrimSpace(title), "-–—:|,. ")
	if title == "" {
		return Draft{}, false
	}

	d := Draft{Title: title}
	if loc := locationRe.FindStringSubmatch(title); loc != nil {
		d.Location = strings.TrimSpace(loc[1])
		d.Title = strings.TrimSpace(title[:len(title)-len(loc[0])])
	}

	end, hasEnd := parseClock(endParts[0], endParts[1], endParts[2])
	if hasEnd {
		// "2:00 - 3:00 PM": the start borrows the end's meridiem when that
		// keeps it before the end.
		if start.meridiem == "" && end.meridiem != "" && start.hour >= 1 && start.hour <= 12 {
			borrowed := start
			borrowed.meridiem = end.meridiem
			if borrowed.minutes() <= end.minutes() {
				start = borrowed
			}
		}
		d.End = format(end.minutes())
	}
	d.Start = format(start.minutes())
	if d.Start == "24:00" {
		return Draft{}, false
	}
	return d, true
}

// ToRawEntries turns drafts into entries for one event day.
func ToRawEntries(drafts []Draft, eventID, dayKey string) []model.RawEntry {
	out := make([]model.RawEntry, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, model.RawEntry{
			EventID:  eventID,
			DayKey:   dayKey,
			Start:    d.Start,
			End:      d.End,
			Title:    d.Title,
			Location: d.Location,
		})
	}
	return out
}
