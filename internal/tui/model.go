// Package tui provides a BubbleTea-based dialog host for the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/bitpop/internal/popup"
)

const maxLogLines = 6

// Messages sent by Host. Synchronous ones carry a done channel closed by
// Update once applied.
type (
	createMsg struct {
		cmd popup.Command
	}
	updateMsg struct {
		payload popup.Payload
		done    chan struct{}
	}
	progressMsg struct {
		value int
		done  chan struct{}
	}
	destroyMsg struct {
		done chan struct{}
	}
	broadcastMsg struct {
		alert popup.ServiceAlert
		done  chan struct{}
	}
	logMsg struct {
		line string
	}
	alertLightTimeoutMsg struct {
		seq int
	}
)

// dialog is the host on screen.
type dialog struct {
	requestID string
	payload   popup.Payload
	percent   float64
}

// Model renders at most one dialog plus an optional service banner.
type Model struct {
	report  func(popup.Event)
	keys    KeyMap
	help    help.Model
	styles  Styles
	spinner spinner.Model
	bar     progress.Model

	alertLightTimeout time.Duration

	dialog *dialog
	lastID string // RequestID of the dialog created last, kept after it closes
	banner *popup.ServiceAlert
	seq    int // bumps on every dialog change to expire stale timeouts
	log    []string
	width  int
}

// ModelOptions configures a Model.
type ModelOptions struct {
	ConfirmLabel      string
	CancelLabel       string
	AlertLightTimeout time.Duration
}

// NewModel creates a model that reports host events through report.
func NewModel(opts ModelOptions, report func(popup.Event)) Model {
	if opts.ConfirmLabel == "" {
		opts.ConfirmLabel = "OK"
	}
	if opts.CancelLabel == "" {
		opts.CancelLabel = "Cancel"
	}

	styles := DefaultStyles()
	return Model{
		report:            report,
		keys:              DefaultKeyMap(opts.ConfirmLabel, opts.CancelLabel),
		help:              help.New(),
		styles:            styles,
		spinner:           spinner.New(spinner.WithStyle(styles.Spinner)),
		bar:               progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		alertLightTimeout: opts.AlertLightTimeout,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 8; w > 10 && w < 60 {
			m.bar.Width = w
		}
		return m, nil

	case createMsg:
		m.dialog = &dialog{requestID: msg.cmd.RequestID, payload: msg.cmd.Payload}
		m.lastID = msg.cmd.RequestID
		cmd := m.applyPayload()
		m.emit(popup.EventCreated)
		return m, cmd

	case updateMsg:
		defer close(msg.done)
		if m.dialog == nil {
			return m, nil
		}
		m.dialog.payload = msg.payload
		return m, m.applyPayload()

	case progressMsg:
		defer close(msg.done)
		if m.dialog != nil {
			m.dialog.percent = float64(clamp(msg.value, 0, 100)) / 100
		}
		return m, nil

	case destroyMsg:
		defer close(msg.done)
		m.dialog = nil
		m.seq++
		m.emit(popup.EventDestroyed)
		return m, nil

	case broadcastMsg:
		defer close(msg.done)
		alert := msg.alert
		m.banner = &alert
		return m, nil

	case logMsg:
		m.log = append(m.log, msg.line)
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
		return m, nil

	case alertLightTimeoutMsg:
		if msg.seq == m.seq && m.dialog != nil && m.dialog.payload.Type == popup.DialogAlertLight {
			m.emit(popup.EventCancelPressed)
		}
		return m, nil

	case spinner.TickMsg:
		if m.dialog == nil || !m.dialog.payload.Type.HasSpinner() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyPayload configures keys, spinner and timeout for the dialog payload.
func (m *Model) applyPayload() tea.Cmd {
	m.seq++
	t := m.dialog.payload.Type
	m.keys.Confirm.SetEnabled(t.HasConfirm())
	m.keys.Cancel.SetEnabled(t.Cancelable())

	var cmds []tea.Cmd
	if t.HasSpinner() {
		m.spinner.Spinner = spinnerFor(m.dialog.payload.Animation)
		cmds = append(cmds, m.spinner.Tick)
	}
	if t == popup.DialogAlertLight && m.alertLightTimeout > 0 {
		seq := m.seq
		cmds = append(cmds, tea.Tick(m.alertLightTimeout, func(time.Time) tea.Msg {
			return alertLightTimeoutMsg{seq: seq}
		}))
	}
	return tea.Batch(cmds...)
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.banner != nil {
		switch msg.String() {
		case "enter", "y":
			if m.banner.Action != popup.ServiceActionNone {
				m.report(popup.Event{Kind: popup.EventServiceAction, Action: m.banner.Action})
			}
			m.banner = nil
			return m, nil
		case "esc", "n":
			m.banner = nil
			return m, nil
		}
	}

	if m.dialog == nil {
		return m, nil
	}

	if m.dialog.payload.Type == popup.DialogAlertLight {
		m.emit(popup.EventConfirmPressed)
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.emit(popup.EventConfirmPressed)
	case key.Matches(msg, m.keys.Cancel):
		m.emit(popup.EventCancelPressed)
	}
	return m, nil
}

// emit reports kind for the dialog created last. The report func must not
// block, since it runs inside Update.
func (m Model) emit(kind popup.EventKind) {
	if m.report != nil {
		m.report(popup.Event{Kind: kind, RequestID: m.lastID})
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	for _, line := range m.log {
		b.WriteString(m.styles.Log.Render(line))
		b.WriteString("\n")
	}

	if m.banner != nil {
		b.WriteString(m.renderBanner())
		b.WriteString("\n")
	}

	if m.dialog != nil {
		b.WriteString(m.renderDialog())
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderDialog() string {
	p := m.dialog.payload

	var header []string
	if p.Icon != "" {
		header = append(header, m.styles.iconStyle(p.IconBackground).Render(p.Icon))
	}
	if p.Title != "" {
		header = append(header, m.styles.Title.Render(p.Title))
	}

	var lines []string
	if len(header) > 0 {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(header, " ")))
	}

	body := m.styles.Message.Render(p.Message)
	if p.Type.HasSpinner() {
		body = m.spinner.View() + " " + body
	}
	lines = append(lines, body)

	if p.Type.HasProgress() {
		lines = append(lines, m.bar.ViewAs(m.dialog.percent))
	}

	if p.Type.HasConfirm() || p.Type.Cancelable() {
		lines = append(lines, "", m.help.View(m.keys))
	}

	return m.styles.Dialog.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderBanner() string {
	s := m.banner.Title
	if m.banner.Message != "" {
		s = fmt.Sprintf("%s: %s", s, m.banner.Message)
	}
	if m.banner.Action != popup.ServiceActionNone {
		s += fmt.Sprintf("  [enter: %s, esc: dismiss]", m.banner.Action)
	}
	return m.styles.Banner.Render(s)
}

func clamp(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
