// Package termview prints a laid out day in a terminal: one row per entry,
// with a bar drawn at the entry's horizontal share of the day column.
package termview

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dayline/internal/model"
	"dayline/internal/timeline"
)

const (
	// DefaultWidth is used when the terminal width is unknown.
	DefaultWidth = 80
	minBarWidth  = 12
	// "HH:MM-HH:MM " plus the two bar borders.
	timeColumn = 12
)

var (
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorAccent = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}

	styleTime   = lipgloss.NewStyle().Foreground(colorDim)
	styleBorder = lipgloss.NewStyle().Foreground(colorDim)
	styleTitle  = lipgloss.NewStyle().Bold(true)
	styleMuted  = lipgloss.NewStyle().Faint(true)
)

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func barStyle(c string) lipgloss.Style {
	if hexColorRe.MatchString(c) {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return lipgloss.NewStyle().Foreground(colorAccent)
}

// Render draws entries using their blocks from layout. Rows are ordered by
// start time; entries missing from layout are skipped. width is the total
// line width; the bar gets half of what remains after the time column.
func Render(entries []model.TimelineEntry, layout timeline.Layout, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	barWidth := (width - timeColumn) / 2
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	rows := make([]model.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := layout[e.ID]; ok {
			rows = append(rows, e)
		}
	}
	if len(rows) == 0 {
		return styleMuted.Render("(no entries)") + "\n"
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].StartMinute != rows[j].StartMinute {
			return rows[i].StartMinute < rows[j].StartMinute
		}
		return rows[i].EndMinute < rows[j].EndMinute
	})

	var b strings.Builder
	for _, e := range rows {
		blk := layout[e.ID]
		from, n := barSpan(blk, barWidth)

		bar := strings.Repeat(" ", from) +
			barStyle(e.Color).Render(strings.Repeat("█", n)) +
			strings.Repeat(" ", barWidth-from-n)

		b.WriteString(styleTime.Render(timeline.FormatClock(e.StartMinute) + "-" + timeline.FormatClock(e.EndMinute)))
		b.WriteString(" ")
		b.WriteString(styleBorder.Render("│"))
		b.WriteString(bar)
		b.WriteString(styleBorder.Render("│"))
		b.WriteString(" ")
		b.WriteString(styleTitle.Render(e.Title))
		if e.Location != "" {
			b.WriteString(styleMuted.Render(" @ " + e.Location))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// barSpan maps a block's left/width percentages onto cells. Every entry
// gets at least one cell and never runs past the bar.
func barSpan(blk model.Block, barWidth int) (from, n int) {
	from = int(math.Round(blk.LeftPercent / 100 * float64(barWidth)))
	to := int(math.Round((blk.LeftPercent + blk.WidthPercent) / 100 * float64(barWidth)))
	if from >= barWidth {
		from = barWidth - 1
	}
	if to > barWidth {
		to = barWidth
	}
	n = to - from
	if n < 1 {
		n = 1
	}
	return from, n
}
