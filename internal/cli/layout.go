package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dayline/internal/model"
	"dayline/internal/termview"
	"dayline/internal/timeline"
)

type layoutRow struct {
	Entry model.TimelineEntry `json:"entry"`
	Block model.Block         `json:"block"`
}

func newLayoutCmd(a *app) *cobra.Command {
	var (
		pph    float64
		asJSON bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "layout <event-id> [day]",
		Short: "Print the layout of an event, or of one of its days",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ev, err := st.GetEvent(args[0])
			if err != nil {
				return err
			}
			if pph <= 0 {
				pph = a.cfg.PixelsPerHour
			}

			var entries []model.TimelineEntry
			if len(args) == 2 {
				entries, err = st.EntriesForDay(ev.ID, args[1])
			} else {
				var raws []model.RawEntry
				raws, err = st.Entries(ev.ID)
				entries = timeline.NormalizeAll(raws)
			}
			if err != nil {
				return err
			}
			layouts := timeline.ComputeDays(entries, timeline.Options{PixelsPerHour: pph})

			out := cmd.OutOrStdout()
			if asJSON {
				rows := make([]layoutRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, layoutRow{Entry: e, Block: layouts[e.DayKey][e.ID]})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			days := orderedDays(entries)
			if len(days) == 0 {
				if len(args) == 1 {
					fmt.Fprintf(out, "%s %s\n", styleBrand.Render(ev.Name), styleHint.Render("has no entries"))
					return nil
				}
				days = []string{args[1]}
			}
			for i, day := range days {
				if i > 0 {
					fmt.Fprintln(out)
				}
				var dayEntries []model.TimelineEntry
				for _, e := range entries {
					if e.DayKey == day {
						dayEntries = append(dayEntries, e)
					}
				}
				fmt.Fprintf(out, "%s %s\n\n", styleBrand.Render(ev.Name), styleLabel.Render(day))
				fmt.Fprint(out, termview.Render(dayEntries, layouts[day], width))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&pph, "pph", 0, "pixels per hour (defaults to the configured zoom)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print blocks as JSON")
	cmd.Flags().IntVar(&width, "width", termview.DefaultWidth, "output width in columns")
	return cmd
}

// orderedDays lists the distinct day keys of entries in first-seen order.
func orderedDays(entries []model.TimelineEntry) []string {
	seen := make(map[string]bool)
	var days []string
	for _, e := range entries {
		if !seen[e.DayKey] {
			seen[e.DayKey] = true
			days = append(days, e.DayKey)
		}
	}
	return days
}
