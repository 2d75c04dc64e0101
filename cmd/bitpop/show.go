package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/bitpop/internal/dbus"
	"github.com/jmylchreest/bitpop/internal/popup"
)

var showOpts struct {
	title     string
	icon      string
	iconBg    string
	animation int
	dialog    string
	wait      bool
}

var showCmd = &cobra.Command{
	Use:   "show MESSAGE",
	Short: "Queue a dialog",
	Long: `Queue a dialog on the running bitpopd.

Dialogs are shown one at a time. Showing while another dialog is on screen
replaces its content in place.

With --wait, bitpop blocks until the dialog is answered and exits 0 when it
is confirmed or 2 when it is cancelled.

Examples:
  bitpop show "Flashing micro:bit" --type progress
  bitpop show "Pair with micro:bit?" --type choice --wait && pair-device`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringVarP(&showOpts.title, "title", "t", "",
		"Dialog title")
	showCmd.Flags().StringVar(&showOpts.icon, "icon", "",
		"Icon name (default from config)")
	showCmd.Flags().StringVar(&showOpts.iconBg, "icon-bg", "",
		"Icon background color")
	showCmd.Flags().IntVar(&showOpts.animation, "animation", 0,
		"Animation code for spinner dialogs")
	showCmd.Flags().StringVar(&showOpts.dialog, "type", "alert",
		"Dialog type ("+strings.Join(popup.DialogTypeNames(), ", ")+")")
	showCmd.Flags().BoolVarP(&showOpts.wait, "wait", "w", false,
		"Wait for the dialog to be answered")
}

func runShow(cmd *cobra.Command, args []string) error {
	t, err := parseDialogTypeFlag(showOpts.dialog)
	if err != nil {
		return err
	}

	showArgs := dbus.ShowArgs{
		Message:   args[0],
		Title:     showOpts.title,
		Icon:      showOpts.icon,
		IconBg:    showOpts.iconBg,
		Animation: showOpts.animation,
		Type:      t.String(),
	}

	if !showOpts.wait {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			ticket, err := c.Show(ctx, showArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ticket)
			return nil
		})
	}

	c, err := dbus.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	confirmed, err := c.ShowAndWait(ctx, showArgs)
	if err != nil {
		return err
	}
	if !confirmed {
		return &exitError{code: 2}
	}
	return nil
}

// parseDialogTypeFlag parses a showable dialog type, suggesting close
// matches for unknown names.
func parseDialogTypeFlag(name string) (popup.DialogType, error) {
	t, err := popup.ParseDialogType(name)
	if err == nil && t != popup.DialogNone {
		return t, nil
	}

	names := popup.DialogTypeNames()
	if suggestions := suggestDialogTypes(name, names); len(suggestions) > 0 {
		return popup.DialogNone, fmt.Errorf("unknown dialog type %q, did you mean %s?",
			name, strings.Join(suggestions, " or "))
	}
	return popup.DialogNone, fmt.Errorf("unknown dialog type %q, valid types: %s",
		name, strings.Join(names, ", "))
}

// suggestDialogTypes returns at most three names fuzzily matching name,
// closest first.
func suggestDialogTypes(name string, names []string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	ranks := fuzzy.RankFindNormalizedFold(name, names)
	sort.Sort(ranks)

	var out []string
	for _, r := range ranks {
		out = append(out, r.Target)
		if len(out) == 3 {
			break
		}
	}
	return out
}
