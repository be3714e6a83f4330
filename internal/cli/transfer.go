package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dayline/internal/docimport"
	"dayline/internal/feedsync"
	"dayline/internal/ics"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import entries from text or calendar files",
	}
	cmd.AddCommand(newImportTextCmd(a))
	cmd.AddCommand(newImportICSCmd(a))
	return cmd
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newImportTextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "text <event-id> <day> <file|->",
		Short: "Add schedule lines found in extracted document text",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ev, err := st.GetEvent(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[2])
			if err != nil {
				return err
			}

			drafts := docimport.Parse(string(data))
			out := cmd.OutOrStdout()
			added := 0
			for i, raw := range docimport.ToRawEntries(drafts, ev.ID, args[1]) {
				if _, err := st.AddEntry(raw); err != nil {
					fmt.Fprintf(out, "  %s line %d: %v\n", styleHint.Render("skipped"), drafts[i].Line, err)
					continue
				}
				added++
			}
			fmt.Fprintf(out, "%s %d of %d lines\n", styleSuccess.Render("Imported"), added, len(drafts))
			return nil
		},
	}
}

func newImportICSCmd(a *app) *cobra.Command {
	var sourceID, color string
	cmd := &cobra.Command{
		Use:   "ics <event-id> <file|->",
		Short: "Replace the entries of one calendar source with a .ics file",
		Long: `Reads a VCALENDAR, expands recurring items over the event's days and
replaces every entry previously imported under the same source ID.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ev, err := st.GetEvent(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			if sourceID == "" {
				sourceID = "import:" + strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
			}

			occs, err := feedsync.ExpandForEvent(ev, a.cfg.Timezone, ics.Source{ID: sourceID}, data)
			if err != nil {
				return err
			}
			n, err := st.ReplaceSourceEntries(ev.ID, sourceID, ics.ToRawEntries(occs, sourceID, color))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries from %d occurrences %s\n",
				styleSuccess.Render("Imported"), n, len(occs), styleHint.Render("(source "+sourceID+")"))
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "source ID owning the imported entries (default import:<file name>)")
	cmd.Flags().StringVar(&color, "color", "", "color for imported entries, e.g. #ff8800")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <event-id>",
		Short: "Write an event's timeline as an .ics calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			ev, err := st.GetEvent(args[0])
			if err != nil {
				return err
			}
			entries, err := st.Entries(ev.ID)
			if err != nil {
				return err
			}
			data, err := ics.Export(ev, entries, feedsync.EventLocation(ev, a.cfg.Timezone))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", styleSuccess.Render("Wrote"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
