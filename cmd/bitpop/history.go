package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/bitpop/internal/dbus"
	"github.com/jmylchreest/bitpop/internal/popup"
)

var historyOpts struct {
	format string
	limit  int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List dialogs shown by the daemon",
	Long: `List the dialogs bitpopd has shown, newest first.

Only dialogs that reached the screen are listed. The journal is kept in memory
and its length is set by journal.length in the config file.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml)")
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 0,
		"Maximum number of entries to show (0=unlimited)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, c *dbus.Client) error {
		entries, err := c.History(ctx)
		if err != nil {
			return err
		}
		if historyOpts.limit > 0 && len(entries) > historyOpts.limit {
			entries = entries[:historyOpts.limit]
		}
		return writeHistory(cmd.OutOrStdout(), entries, historyOpts.format, time.Now())
	})
}

// writeHistory renders entries in format. Relative times in plain output
// are computed against now.
func writeHistory(w io.Writer, entries []popup.Entry, format string, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
		return enc.Close()

	case "plain":
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, "No dialogs shown")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			restore := ""
			if e.Restorable {
				restore = "restorable"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				humanize.RelTime(e.ShownAt, now, "ago", "from now"),
				e.TypeName, e.StatusName, entryText(e), restore, e.ID)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown format %q (valid: plain, json, yaml)", format)
	}
}

func entryText(e popup.Entry) string {
	switch {
	case e.Title != "" && e.Message != "":
		return e.Title + ": " + e.Message
	case e.Title != "":
		return e.Title
	default:
		return e.Message
	}
}
