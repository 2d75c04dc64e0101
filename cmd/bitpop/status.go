package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/bitpop/internal/dbus"
)

var statusOpts struct {
	format string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's dialog state",
	Long: `Show what bitpopd currently has on screen and how many requests are
waiting in its queue.

The JSON output is suitable for status bars:

  {"current":"progress","busy":false,"pending":0}`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOpts.format, "format", "f", "json",
		"Output format (json, plain)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, c *dbus.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		return writeStatus(cmd.OutOrStdout(), st, statusOpts.format)
	})
}

// writeStatus renders st in format.
func writeStatus(w io.Writer, st dbus.Status, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(st)
	case "plain":
		state := "idle"
		if st.Busy {
			state = "busy"
		}
		_, err := fmt.Fprintf(w, "%s (%s, %d pending)\n", st.Current, state, st.Pending)
		return err
	default:
		return fmt.Errorf("unknown format %q (valid: json, plain)", format)
	}
}
