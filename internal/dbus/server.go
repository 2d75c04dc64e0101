package dbus

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/bitpop/internal/popup"
)

const (
	// PopupInterface is the bitpop service interface name.
	PopupInterface = "io.github.jmylchreest.BitPop"
	// PopupPath is the bitpop service object path.
	PopupPath = "/io/github/jmylchreest/BitPop"
	// PopupBusName is the bus name claimed by bitpopd.
	PopupBusName = "io.github.jmylchreest.BitPop"
)

// Popups is the orchestrator surface exported on the bus.
type Popups interface {
	Show(p popup.Payload, onConfirm, onCancel popup.Callback) bool
	Hide()
	UpdateProgressBar(value int)
	ShowFromService(alert popup.ServiceAlert) bool
	Restore() error
	Snapshot() popup.State
	History() []popup.Entry
}

// emitter sends signals. *dbus.Conn satisfies it.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// PopupServer exports an orchestrator as io.github.jmylchreest.BitPop.
// Remote callers learn about button presses through the Confirmed and
// Cancelled signals, after which the dialog is hidden.
type PopupServer struct {
	popups Popups
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *dbus.Conn
	emitter emitter
	running bool
}

// NewPopupServer creates a server for popups.
func NewPopupServer(popups Popups, logger *slog.Logger) *PopupServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PopupServer{
		popups: popups,
		logger: logger,
	}
}

// Start exports the service on conn and claims PopupBusName.
func (s *PopupServer) Start(conn *dbus.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	if err := conn.Export(s, PopupPath, PopupInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: PopupPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    PopupInterface,
				Methods: popupMethods(),
				Signals: popupSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), PopupPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(PopupBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", PopupBusName)
	}

	s.conn = conn
	s.emitter = conn
	s.running = true

	s.logger.Info("D-Bus popup server started", "interface", PopupInterface, "path", PopupPath)
	return nil
}

// Stop releases the bus name and unexports the service.
func (s *PopupServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	if _, err := s.conn.ReleaseName(PopupBusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	if err := s.conn.Export(nil, PopupPath, PopupInterface); err != nil {
		s.logger.Debug("failed to unexport object", "error", err)
	}

	s.logger.Info("D-Bus popup server stopped")
	return nil
}

// Show enqueues a dialog and returns a ticket ID carried by the
// Confirmed and Cancelled signals.
// D-Bus method: Show(s message, s title, s icon, s icon_bg, i animation, s type) -> (b, s)
func (s *PopupServer) Show(message, title, icon, iconBg string, animation int32, dialogType string) (bool, string, *dbus.Error) {
	t, err := popup.ParseDialogType(dialogType)
	if err != nil || t == popup.DialogNone {
		if err == nil {
			err = fmt.Errorf("dialog type %q cannot be shown", dialogType)
		}
		return false, "", dbus.MakeFailedError(err)
	}

	ticket := ulid.MustNew(ulid.Now(), rand.Reader).String()
	p := popup.Payload{
		Message:        message,
		Title:          title,
		Icon:           icon,
		IconBackground: iconBg,
		Animation:      int(animation),
		Type:           t,
	}

	onConfirm := popup.Call(func() {
		s.emit("Confirmed", ticket)
		s.popups.Hide()
	})
	onCancel := popup.Call(func() {
		s.emit("Cancelled", ticket)
		s.popups.Hide()
	})

	s.logger.Debug("Show called", "ticket", ticket, "dialog_type", t, "title", title)
	return s.popups.Show(p, onConfirm, onCancel), ticket, nil
}

// Hide tears down the dialog on screen.
// D-Bus method: Hide()
func (s *PopupServer) Hide() *dbus.Error {
	s.logger.Debug("Hide called")
	s.popups.Hide()
	return nil
}

// UpdateProgress sets the progress of the dialog on screen.
// D-Bus method: UpdateProgress(i value)
func (s *PopupServer) UpdateProgress(value int32) *dbus.Error {
	if value < 0 || value > 100 {
		return dbus.MakeFailedError(fmt.Errorf("progress must be between 0 and 100, got %d", value))
	}
	s.popups.UpdateProgressBar(int(value))
	return nil
}

// ShowFromService presents a service alert outside the dialog queue.
// D-Bus method: ShowFromService(s message, s title, s icon, s action) -> b
func (s *PopupServer) ShowFromService(message, title, icon, action string) (bool, *dbus.Error) {
	a, err := popup.ParseServiceAction(action)
	if err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return s.popups.ShowFromService(popup.ServiceAlert{
		Message: message,
		Title:   title,
		Icon:    icon,
		Action:  a,
	}), nil
}

// Restore re-shows the most recently closed dialog.
// D-Bus method: Restore()
func (s *PopupServer) Restore() *dbus.Error {
	if err := s.popups.Restore(); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Status reports the orchestrator state.
// D-Bus method: Status() -> (s current, b busy, i pending)
func (s *PopupServer) Status() (string, bool, int32, *dbus.Error) {
	st := s.popups.Snapshot()
	return st.Current.String(), st.Busy, int32(st.Pending), nil
}

// History returns the dialog journal as JSON, newest first.
// D-Bus method: History() -> s
func (s *PopupServer) History() (string, *dbus.Error) {
	data, err := json.Marshal(s.popups.History())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func popupMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "Show",
			Args: []introspect.Arg{
				{Name: "message", Type: "s", Direction: "in"},
				{Name: "title", Type: "s", Direction: "in"},
				{Name: "icon", Type: "s", Direction: "in"},
				{Name: "icon_bg", Type: "s", Direction: "in"},
				{Name: "animation", Type: "i", Direction: "in"},
				{Name: "type", Type: "s", Direction: "in"},
				{Name: "accepted", Type: "b", Direction: "out"},
				{Name: "id", Type: "s", Direction: "out"},
			},
		},
		{Name: "Hide"},
		{
			Name: "UpdateProgress",
			Args: []introspect.Arg{
				{Name: "value", Type: "i", Direction: "in"},
			},
		},
		{
			Name: "ShowFromService",
			Args: []introspect.Arg{
				{Name: "message", Type: "s", Direction: "in"},
				{Name: "title", Type: "s", Direction: "in"},
				{Name: "icon", Type: "s", Direction: "in"},
				{Name: "action", Type: "s", Direction: "in"},
				{Name: "accepted", Type: "b", Direction: "out"},
			},
		},
		{Name: "Restore"},
		{
			Name: "Status",
			Args: []introspect.Arg{
				{Name: "current", Type: "s", Direction: "out"},
				{Name: "busy", Type: "b", Direction: "out"},
				{Name: "pending", Type: "i", Direction: "out"},
			},
		},
		{
			Name: "History",
			Args: []introspect.Arg{
				{Name: "json", Type: "s", Direction: "out"},
			},
		},
	}
}

func popupSignals() []introspect.Signal {
	return []introspect.Signal{
		{Name: "Confirmed", Args: []introspect.Arg{{Name: "id", Type: "s"}}},
		{Name: "Cancelled", Args: []introspect.Arg{{Name: "id", Type: "s"}}},
		{Name: "ServiceAction", Args: []introspect.Arg{{Name: "action", Type: "s"}}},
	}
}
