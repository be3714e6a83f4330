package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dayline/internal/model"
)

func newEventCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage events",
	}
	cmd.AddCommand(newEventCreateCmd(a))
	cmd.AddCommand(newEventListCmd(a))
	return cmd
}

func newEventCreateCmd(a *app) *cobra.Command {
	var ev model.Event
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			created, err := st.CreateEvent(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				styleSuccess.Render("Created event"), styleValue.Render(created.Name), styleHint.Render(created.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&ev.Name, "name", "", "event name")
	cmd.Flags().StringVar(&ev.StartDate, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&ev.EndDate, "end", "", "last day (YYYY-MM-DD), defaults to --start")
	cmd.Flags().StringVar(&ev.Timezone, "tz", "", "IANA timezone, defaults to the configured one")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newEventListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			events := st.ListEvents()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events. Run 'dayline event create' to add one.")
				return nil
			}
			for _, ev := range events {
				days := ev.StartDate
				if ev.EndDate != ev.StartDate {
					days += ".." + ev.EndDate
				}
				fmt.Fprintf(out, "  %s  %s  %s\n", styleHint.Render(ev.ID), styleLabel.Render(days), styleValue.Render(ev.Name))
			}
			return nil
		},
	}
}
