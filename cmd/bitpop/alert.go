package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/bitpop/internal/dbus"
	"github.com/jmylchreest/bitpop/internal/popup"
)

var alertOpts struct {
	title  string
	icon   string
	action string
}

var alertCmd = &cobra.Command{
	Use:   "alert MESSAGE",
	Short: "Raise a service alert",
	Long: `Raise an alert on behalf of a background service.

Service alerts bypass the dialog queue. Identical alerts raised within the
configured service.min_interval are dropped. bitpop exits 3 when the alert
was not shown.

With --action stop-playback, confirming the alert makes bitpopd emit the
ServiceAction signal.`,
	Args: cobra.ExactArgs(1),
	RunE: runAlert,
}

func init() {
	rootCmd.AddCommand(alertCmd)

	alertCmd.Flags().StringVarP(&alertOpts.title, "title", "t", "",
		"Alert title")
	alertCmd.Flags().StringVar(&alertOpts.icon, "icon", "",
		"Icon name")
	alertCmd.Flags().StringVar(&alertOpts.action, "action", "",
		"Action run when the alert is confirmed (stop-playback)")
}

func runAlert(cmd *cobra.Command, args []string) error {
	action, err := popup.ParseServiceAction(alertOpts.action)
	if err != nil {
		return err
	}

	return withClient(func(ctx context.Context, c *dbus.Client) error {
		accepted, err := c.ShowFromService(ctx, popup.ServiceAlert{
			Message: args[0],
			Title:   alertOpts.title,
			Icon:    alertOpts.icon,
			Action:  action,
		})
		if err != nil {
			return err
		}
		if !accepted {
			return &exitError{code: 3, msg: fmt.Sprintf("alert %q was not shown", args[0])}
		}
		return nil
	})
}
