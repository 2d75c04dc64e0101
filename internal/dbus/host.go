package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// NotificationHost presents dialogs through an org.freedesktop.Notifications
// server. At most one dialog notification is live at a time.
type NotificationHost struct {
	obj    dbus.BusObject
	logger *slog.Logger

	mu       sync.Mutex
	opts     HostOptions
	sink     popup.EventSink
	id       uint32 // live dialog notification, 0 if none
	payload  popup.Payload
	request  string // RequestID of the last created dialog, kept after it closes
	progress int
	closing  bool // CloseNotification sent, awaiting NotificationClosed
	acted    bool // an action was invoked on the live dialog

	broadcasts map[uint32]popup.ServiceAction
}

// NewNotificationHost creates a host that calls Notify on obj.
// Signals must be fed in through Listen.
func NewNotificationHost(obj dbus.BusObject, opts HostOptions, logger *slog.Logger) *NotificationHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHost{
		obj:        obj,
		logger:     logger,
		opts:       opts.withDefaults(),
		broadcasts: make(map[uint32]popup.ServiceAction),
	}
}

// ConnectNotificationHost creates a host on conn and starts listening for
// notification signals until ctx is cancelled.
func ConnectNotificationHost(ctx context.Context, conn *dbus.Conn, opts HostOptions, logger *slog.Logger) (*NotificationHost, error) {
	matches := []dbus.MatchOption{
		dbus.WithMatchInterface(NotificationsInterface),
		dbus.WithMatchObjectPath(NotificationsPath),
	}
	if err := conn.AddMatchSignal(matches...); err != nil {
		return nil, fmt.Errorf("failed to add notification signal match: %w", err)
	}

	h := NewNotificationHost(conn.Object(NotificationsBusName, NotificationsPath), opts, logger)

	signals := make(chan *dbus.Signal, 32)
	conn.Signal(signals)
	go func() {
		h.Listen(ctx, signals)
		conn.RemoveSignal(signals)
		if err := conn.RemoveMatchSignal(matches...); err != nil {
			h.logger.Debug("failed to remove notification signal match", "error", err)
		}
	}()

	return h, nil
}

// SetOptions replaces the rendering options. Applies from the next Notify.
func (h *NotificationHost) SetOptions(opts HostOptions) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = opts.withDefaults()
}

// Attach implements popup.Host.
func (h *NotificationHost) Attach(sink popup.EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

// Create implements popup.Host. The notification is sent in the background
// and EventCreated reported once the server has assigned an ID.
func (h *NotificationHost) Create(cmd popup.Command) error {
	h.mu.Lock()
	n := dialogNotification(cmd.Payload, cmd.RequestID, 0, h.opts)
	h.mu.Unlock()

	go func() {
		id, err := h.notify(n)
		if err != nil {
			// Report a host that came and went so the queue can move on.
			h.logger.Warn("failed to create dialog notification", "request_id", cmd.RequestID, "error", err)
			h.report(popup.Event{Kind: popup.EventCreated, RequestID: cmd.RequestID})
			h.report(popup.Event{Kind: popup.EventDestroyed, RequestID: cmd.RequestID})
			return
		}

		h.mu.Lock()
		h.id = id
		h.payload = cmd.Payload
		h.request = cmd.RequestID
		h.progress = 0
		h.closing = false
		h.acted = false
		h.mu.Unlock()

		h.logger.Debug("dialog notification created", "id", id, "request_id", cmd.RequestID)
		h.report(popup.Event{Kind: popup.EventCreated, RequestID: cmd.RequestID})
	}()
	return nil
}

// Update implements popup.Host by replacing the live notification.
func (h *NotificationHost) Update(p popup.Payload) error {
	h.mu.Lock()
	id := h.id
	if id == 0 {
		h.mu.Unlock()
		return &popup.HostError{Op: "update", Cause: popup.ErrNoHost}
	}
	n := dialogNotification(p, h.request, h.progress, h.opts)
	n.ReplacesID = id
	h.mu.Unlock()

	if _, err := h.notify(n); err != nil {
		return &popup.HostError{Op: "update", Cause: err}
	}

	h.mu.Lock()
	h.payload = p
	h.mu.Unlock()
	return nil
}

// UpdateProgress implements popup.Host by replacing the live notification
// with a new value hint.
func (h *NotificationHost) UpdateProgress(value int) error {
	h.mu.Lock()
	id := h.id
	if id == 0 {
		h.mu.Unlock()
		return &popup.HostError{Op: "progress", Cause: popup.ErrNoHost}
	}
	h.progress = clampProgress(value)
	n := dialogNotification(h.payload, h.request, h.progress, h.opts)
	n.ReplacesID = id
	h.mu.Unlock()

	if _, err := h.notify(n); err != nil {
		return &popup.HostError{Op: "progress", Cause: err}
	}
	return nil
}

// Destroy implements popup.Host. EventDestroyed follows on NotificationClosed,
// or immediately if the notification is already gone.
func (h *NotificationHost) Destroy() error {
	h.mu.Lock()
	id, request := h.id, h.request
	if id == 0 {
		h.mu.Unlock()
		h.report(popup.Event{Kind: popup.EventDestroyed, RequestID: request})
		return nil
	}
	h.closing = true
	h.mu.Unlock()

	if err := h.obj.Call(NotificationsInterface+".CloseNotification", 0, id).Err; err != nil {
		// The server answers with an error when the ID is unknown.
		h.logger.Debug("close notification failed, treating as closed", "id", id, "error", err)
		h.mu.Lock()
		if h.id == id {
			h.id = 0
			h.closing = false
		}
		h.mu.Unlock()
		h.report(popup.Event{Kind: popup.EventDestroyed, RequestID: request})
	}
	return nil
}

// Broadcast implements popup.Host with an untracked notification.
func (h *NotificationHost) Broadcast(alert popup.ServiceAlert) error {
	h.mu.Lock()
	n := serviceNotification(alert, h.opts)
	h.mu.Unlock()

	id, err := h.notify(n)
	if err != nil {
		return &popup.HostError{Op: "broadcast", Cause: err}
	}

	if alert.Action != popup.ServiceActionNone {
		h.mu.Lock()
		h.broadcasts[id] = alert.Action
		h.mu.Unlock()
	}
	return nil
}

// Listen processes notification signals until ctx is cancelled or signals closes.
func (h *NotificationHost) Listen(ctx context.Context, signals <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			h.handleSignal(sig)
		}
	}
}

func (h *NotificationHost) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	switch sig.Name {
	case NotificationsInterface + ".ActionInvoked":
		key, _ := sig.Body[1].(string)
		h.actionInvoked(id, key)
	case NotificationsInterface + ".NotificationClosed":
		reason, _ := sig.Body[1].(uint32)
		h.notificationClosed(id, CloseReason(reason))
	}
}

func (h *NotificationHost) actionInvoked(id uint32, key string) {
	h.mu.Lock()
	if action, ok := h.broadcasts[id]; ok {
		h.mu.Unlock()
		if key == ActionConfirm || key == ActionDefault {
			h.logger.Debug("service alert action invoked", "id", id, "action", action)
			h.report(popup.Event{Kind: popup.EventServiceAction, Action: action})
		}
		return
	}
	if id == 0 || id != h.id {
		h.mu.Unlock()
		return
	}
	h.acted = true
	request := h.request
	h.mu.Unlock()

	h.logger.Debug("dialog action invoked", "id", id, "action_key", key)
	switch key {
	case ActionConfirm, ActionDefault:
		h.report(popup.Event{Kind: popup.EventConfirmPressed, RequestID: request})
	case ActionCancel:
		h.report(popup.Event{Kind: popup.EventCancelPressed, RequestID: request})
	}
}

func (h *NotificationHost) notificationClosed(id uint32, reason CloseReason) {
	h.mu.Lock()
	if _, ok := h.broadcasts[id]; ok {
		delete(h.broadcasts, id)
		h.mu.Unlock()
		return
	}
	if id == 0 || id != h.id {
		h.mu.Unlock()
		return
	}
	requested, acted, request := h.closing, h.acted, h.request
	h.id = 0
	h.closing = false
	h.acted = false
	h.mu.Unlock()

	h.logger.Debug("dialog notification closed", "id", id, "reason", reason, "requested", requested)

	// A dismissal nobody asked for counts as cancel.
	if !requested && !acted {
		h.report(popup.Event{Kind: popup.EventCancelPressed, RequestID: request})
	}
	h.report(popup.Event{Kind: popup.EventDestroyed, RequestID: request})
}

func (h *NotificationHost) notify(n *Notification) (uint32, error) {
	var id uint32
	err := h.obj.Call(NotificationsInterface+".Notify", 0,
		n.AppName,
		n.ReplacesID,
		n.AppIcon,
		n.Summary,
		n.Body,
		n.Actions,
		n.Hints,
		n.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}

func (h *NotificationHost) report(ev popup.Event) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink == nil {
		h.logger.Debug("dropping host event, no listener attached", "event", ev.Kind)
		return
	}
	sink.Report(ev)
}
