package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/bitpop/internal/dbus"
)

var hideCmd = &cobra.Command{
	Use:   "hide",
	Short: "Hide the dialog on screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			return c.Hide(ctx)
		})
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress VALUE",
	Short: "Set the progress of the dialog on screen (0-100)",
	Long: `Set the progress bar of the dialog on screen.

The value is ignored by bitpopd when no dialog is on screen.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseProgress(args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			return c.UpdateProgress(ctx, value)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Show the most recently closed dialog again",
	Long: `Show the most recently closed dialog again, with its original content.

Alert-light dialogs are never restored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			return c.Restore(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(restoreCmd)
}

func parseProgress(s string) (int, error) {
	value, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid progress %q: %w", s, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("progress must be between 0 and 100, got %d", value)
	}
	return value, nil
}
