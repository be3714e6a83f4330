// Package timeline lays out one day's entries the way calendar day views
// do: overlapping entries share the width side by side, everything else
// gets the full width.
package timeline

import (
	"math"
	"sort"

	"dayline/internal/model"
)

const (
	DefaultPixelsPerHour   = 60
	DefaultPadMinutes      = 1
	DefaultMinHeightPixels = 40
)

// Layout maps entry ID to its block.
type Layout map[string]model.Block

// Options tunes a layout pass. Zero values take the defaults above, except
// PadMinutes where a negative value means "no pad".
type Options struct {
	PixelsPerHour   float64
	PadMinutes      float64
	MinHeightPixels float64
}

func (o Options) withDefaults() Options {
	if o.PixelsPerHour <= 0 || math.IsNaN(o.PixelsPerHour) || math.IsInf(o.PixelsPerHour, 0) {
		o.PixelsPerHour = DefaultPixelsPerHour
	}
	switch {
	case o.PadMinutes == 0:
		o.PadMinutes = DefaultPadMinutes
	case o.PadMinutes < 0:
		o.PadMinutes = 0
	}
	if o.MinHeightPixels <= 0 {
		o.MinHeightPixels = DefaultMinHeightPixels
	}
	return o
}

// placed is an entry's visual interval plus bookkeeping for one pass.
type placed struct {
	id         string
	start, end float64
	column     int
	group      int
}

func (p *placed) overlaps(q *placed) bool {
	return p.start < q.end && q.start < p.end
}

// Compute lays out entries belonging to a single day with the default pad
// and minimum height.
func Compute(entries []model.TimelineEntry, pixelsPerHour float64) Layout {
	return ComputeWithOptions(entries, Options{PixelsPerHour: pixelsPerHour})
}

// ComputeWithOptions lays out entries belonging to a single day. It never
// fails: an entry whose end is not after its start is shrunk to a zero
// length interval and rendered at the minimum height. The input slice is
// not modified.
func ComputeWithOptions(entries []model.TimelineEntry, opts Options) Layout {
	opts = opts.withDefaults()
	out := make(Layout, len(entries))
	if len(entries) == 0 {
		return out
	}

	items := make([]*placed, len(entries))
	for i, e := range entries {
		start := float64(e.StartMinute) + opts.PadMinutes
		end := float64(e.EndMinute) - opts.PadMinutes
		if end < start {
			end = start
		}
		items[i] = &placed{id: e.ID, start: start, end: end, group: -1}
	}

	// Stable: entries starting together keep caller order.
	order := make([]*placed, len(items))
	copy(order, items)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].start < order[j].start
	})

	assignColumns(order)
	groupColumns := assignGroups(order)

	for _, p := range order {
		cols := groupColumns[p.group]
		width := 100 / float64(cols)
		top := p.start / 60 * opts.PixelsPerHour
		height := (p.end - p.start) / 60 * opts.PixelsPerHour
		if height < opts.MinHeightPixels {
			height = opts.MinHeightPixels
		}
		out[p.id] = model.Block{
			Top:          top,
			Height:       height,
			WidthPercent: width,
			LeftPercent:  float64(p.column) * width,
			Column:       p.column,
			Columns:      cols,
		}
	}
	return out
}

// assignColumns puts each entry into the first column holding nothing it
// overlaps, opening a new column when none fits.
func assignColumns(order []*placed) {
	var columns [][]*placed
	for _, p := range order {
		col := -1
		for i, c := range columns {
			free := true
			for _, q := range c {
				if p.overlaps(q) {
					free = false
					break
				}
			}
			if free {
				col = i
				break
			}
		}
		if col == -1 {
			columns = append(columns, nil)
			col = len(columns) - 1
		}
		columns[col] = append(columns[col], p)
		p.column = col
	}
}

// assignGroups joins transitively overlapping entries into groups and
// returns, per group, how many columns the group spans. First-fit packing
// only opens column k for an entry that overlaps something in each of
// columns 0..k-1, so a group always spans a contiguous 0..n-1 range.
func assignGroups(order []*placed) []int {
	parent := make([]int, len(order))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range order {
		for j := i + 1; j < len(order); j++ {
			if order[i].overlaps(order[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					// Lower index as root keeps group numbering in start order.
					if rj < ri {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	groupOf := make(map[int]int)
	var spans []int
	for i, p := range order {
		root := find(i)
		g, ok := groupOf[root]
		if !ok {
			g = len(spans)
			groupOf[root] = g
			spans = append(spans, 0)
		}
		p.group = g
		if p.column+1 > spans[g] {
			spans[g] = p.column + 1
		}
	}
	return spans
}

// ComputeDays splits entries by DayKey and lays out each day on its own.
func ComputeDays(entries []model.TimelineEntry, opts Options) map[string]Layout {
	byDay := make(map[string][]model.TimelineEntry)
	for _, e := range entries {
		byDay[e.DayKey] = append(byDay[e.DayKey], e)
	}
	out := make(map[string]Layout, len(byDay))
	for day, es := range byDay {
		out[day] = ComputeWithOptions(es, opts)
	}
	return out
}
