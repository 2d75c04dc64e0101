package tui

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// sender delivers messages to a running program. *tea.Program satisfies it.
type sender interface {
	Send(msg tea.Msg)
}

// HostOptions configures the terminal host.
type HostOptions struct {
	ModelOptions
	Input  io.Reader // defaults to stdin
	Output io.Writer // defaults to stdout
}

// Host is a popup.Host that renders dialogs with a bubbletea program.
type Host struct {
	logger  *slog.Logger
	program *tea.Program
	send    sender

	mu   sync.Mutex
	sink popup.EventSink

	quit chan struct{}
}

// NewHost creates a terminal host. Call Run to start the program.
func NewHost(opts HostOptions, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		logger: logger,
		quit:   make(chan struct{}),
	}

	var progOpts []tea.ProgramOption
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	h.program = tea.NewProgram(NewModel(opts.ModelOptions, h.report), progOpts...)
	h.send = h.program
	return h
}

// Run runs the program until it quits. Commands sent afterwards fail with
// popup.ErrNoHost.
func (h *Host) Run() error {
	defer close(h.quit)
	if _, err := h.program.Run(); err != nil {
		return fmt.Errorf("terminal host: %w", err)
	}
	return nil
}

// Quit stops the program.
func (h *Host) Quit() {
	h.program.Quit()
}

// Done is closed once Run returns.
func (h *Host) Done() <-chan struct{} {
	return h.quit
}

// Log prints a line above the dialog.
func (h *Host) Log(format string, args ...any) {
	h.send.Send(logMsg{line: fmt.Sprintf(format, args...)})
}

// Attach implements popup.Host.
func (h *Host) Attach(sink popup.EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

// Create implements popup.Host. EventCreated is reported once the dialog is on screen.
func (h *Host) Create(cmd popup.Command) error {
	select {
	case <-h.quit:
		return &popup.HostError{Op: "create", Cause: popup.ErrNoHost}
	default:
	}
	h.send.Send(createMsg{cmd: cmd})
	return nil
}

// Update implements popup.Host.
func (h *Host) Update(p popup.Payload) error {
	return h.sendSync("update", func(done chan struct{}) tea.Msg {
		return updateMsg{payload: p, done: done}
	})
}

// UpdateProgress implements popup.Host.
func (h *Host) UpdateProgress(value int) error {
	return h.sendSync("progress", func(done chan struct{}) tea.Msg {
		return progressMsg{value: value, done: done}
	})
}

// Destroy implements popup.Host. EventDestroyed is reported once the dialog is gone.
func (h *Host) Destroy() error {
	return h.sendSync("destroy", func(done chan struct{}) tea.Msg {
		return destroyMsg{done: done}
	})
}

// Broadcast implements popup.Host by showing a banner above the dialog.
func (h *Host) Broadcast(alert popup.ServiceAlert) error {
	return h.sendSync("broadcast", func(done chan struct{}) tea.Msg {
		return broadcastMsg{alert: alert, done: done}
	})
}

// sendSync sends a message and waits for Update to apply it.
func (h *Host) sendSync(op string, build func(chan struct{}) tea.Msg) error {
	done := make(chan struct{})
	msg := build(done)

	select {
	case <-h.quit:
		return &popup.HostError{Op: op, Cause: popup.ErrNoHost}
	default:
	}
	h.send.Send(msg)

	select {
	case <-done:
		return nil
	case <-h.quit:
		return &popup.HostError{Op: op, Cause: popup.ErrNoHost}
	}
}

func (h *Host) report(ev popup.Event) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink == nil {
		h.logger.Debug("dropping host event, no listener attached", "event", ev.Kind)
		return
	}
	sink.Report(ev)
}
