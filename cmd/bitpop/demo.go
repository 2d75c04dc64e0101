package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmylchreest/bitpop/internal/popup"
	"github.com/jmylchreest/bitpop/internal/tui"
)

var demoOpts struct {
	logFile string
	step    time.Duration
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a pairing and flashing session in the terminal",
	Long: `Run a scripted micro:bit session against an in-process dialog queue,
rendered in the terminal. No daemon is needed.

Keys: enter/y confirms, esc/n cancels, any key dismisses a light alert,
ctrl+c quits.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoOpts.logFile, "log-file", "",
		"Write orchestrator logs to this file")
	demoCmd.Flags().DurationVar(&demoOpts.step, "step", 1500*time.Millisecond,
		"Delay between scripted steps")
}

func runDemo(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("demo needs an interactive terminal")
	}

	// The terminal belongs to the dialogs, so logs go to a file or nowhere.
	var out io.Writer = io.Discard
	if demoOpts.logFile != "" {
		f, err := os.OpenFile(demoOpts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	demoLogger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	host := tui.NewHost(tui.HostOptions{
		ModelOptions: tui.ModelOptions{
			ConfirmLabel:      cfg.Dialog.ConfirmLabel,
			CancelLabel:       cfg.Dialog.CancelLabel,
			AlertLightTimeout: cfg.Dialog.AlertLightTimeout.Duration(),
		},
	}, demoLogger)

	orch := popup.New(host, popup.Options{
		Logger:             demoLogger,
		JournalLength:      cfg.Journal.Length,
		ServiceMinInterval: cfg.Service.MinInterval.Duration(),
		ServiceMaxKeys:     cfg.Service.RateLimitKeys,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = orch.Run(ctx) }()
	go func() {
		select {
		case <-host.Done():
		case <-ctx.Done():
			return
		}
		cancel()
	}()

	d := &demo{orch: orch, host: host, step: demoOpts.step, icon: cfg.Dialog.DefaultIcon}
	go d.run(ctx)

	return host.Run()
}

// demo scripts a companion-app session against an orchestrator.
type demo struct {
	orch *popup.Orchestrator
	host *tui.Host
	step time.Duration
	icon string
}

func (d *demo) run(ctx context.Context) {
	d.orch.HandleServiceAction(popup.ServiceActionStopPlayback, func() {
		d.host.Log("playback stopped")
	})

	d.host.Log("bitpop demo, ctrl+c to quit")
	d.orch.ShowMessage("Looking for a micro:bit nearby", "Pairing", d.icon, "", 0, popup.DialogSpinner,
		popup.Callback{},
		popup.Call(func() {
			d.host.Log("search cancelled")
			d.orch.Hide()
		}))
	if !d.sleep(ctx) {
		return
	}

	// Replaces the spinner in place.
	d.orch.ShowMessage("Pair with BBC micro:bit [zuvip]?", "Pairing", d.icon, "", 0, popup.DialogChoice,
		popup.Call(func() {
			d.host.Log("paired with zuvip")
			go d.flash(ctx)
		}),
		popup.Call(func() {
			d.host.Log("pairing declined")
			d.orch.ShowMessage("Pairing skipped", "", d.icon, "", 0, popup.DialogAlertLight,
				popup.Callback{}, popup.Callback{})
		}))

	if !d.sleep(ctx) {
		return
	}
	d.orch.ShowFromService(popup.ServiceAlert{
		Title:   "Sound",
		Message: "Your micro:bit is playing music",
		Action:  popup.ServiceActionStopPlayback,
	})
}

// flash walks a progress dialog to completion unless it is cancelled.
func (d *demo) flash(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.orch.ShowMessage("Flashing program", "micro:bit", d.icon, "", 0, popup.DialogProgress,
		popup.Callback{},
		popup.Call(func() {
			cancel()
			d.host.Log("flashing cancelled")
			d.orch.Hide()
		}))

	for value := 0; value <= 100; value += 10 {
		d.orch.UpdateProgressBar(value)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.step / 5):
		}
	}

	d.orch.ShowMessage("Your program is running on the micro:bit", "Done", d.icon, "", 0, popup.DialogAlert,
		popup.Callback{}, popup.Callback{})
}

func (d *demo) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d.step):
		return true
	}
}
