package dbus

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// Labels are the button captions used for dialog actions.
type Labels struct {
	Confirm string
	Cancel  string
}

// HostOptions configures how dialogs are rendered as notifications.
type HostOptions struct {
	AppName           string
	Labels            Labels
	DefaultIcon       string
	AlertLightTimeout time.Duration // expire timeout for alert-light dialogs
	ExpireTimeout     time.Duration // expire timeout for service alerts, 0 = server default
}

func (o HostOptions) withDefaults() HostOptions {
	if o.AppName == "" {
		o.AppName = "bitpop"
	}
	if o.Labels.Confirm == "" {
		o.Labels.Confirm = "OK"
	}
	if o.Labels.Cancel == "" {
		o.Labels.Cancel = "Cancel"
	}
	return o
}

// dialogActions returns the action pairs for a dialog type.
func dialogActions(t popup.DialogType, labels Labels) []string {
	if t == popup.DialogAlertLight {
		// Clicking the body dismisses it.
		return []string{ActionDefault, labels.Confirm}
	}

	actions := []string{}
	if t.HasConfirm() {
		actions = append(actions, ActionConfirm, labels.Confirm)
	}
	if t.Cancelable() {
		actions = append(actions, ActionCancel, labels.Cancel)
	}
	return actions
}

// dialogHints returns the hints for a dialog payload. progress < 0 omits the value hint.
func dialogHints(p popup.Payload, requestID string, progress int) map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency":     dbus.MakeVariant(dialogUrgency(p.Type)),
		HintAnimation: dbus.MakeVariant(int32(p.Animation)),
	}
	if requestID != "" {
		hints[HintRequestID] = dbus.MakeVariant(requestID)
	}

	if p.Type == popup.DialogAlertLight {
		hints["transient"] = dbus.MakeVariant(true)
	} else {
		// Keep the dialog up after a button press until it is destroyed.
		hints["resident"] = dbus.MakeVariant(true)
	}

	if p.Type.HasProgress() && progress >= 0 {
		hints["value"] = dbus.MakeVariant(int32(clampProgress(progress)))
	}
	if p.IconBackground != "" {
		hints["bgcolor"] = dbus.MakeVariant(p.IconBackground)
	}
	return hints
}

func dialogUrgency(t popup.DialogType) byte {
	switch {
	case t == popup.DialogAlertLight:
		return UrgencyLow
	case !t.Cancelable() && !t.HasConfirm():
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

// dialogNotification renders a dialog payload as Notify arguments.
func dialogNotification(p popup.Payload, requestID string, progress int, opts HostOptions) *Notification {
	icon := p.Icon
	if icon == "" {
		icon = opts.DefaultIcon
	}

	// Dialogs stay until destroyed, except alert-light.
	var timeout int32
	if p.Type == popup.DialogAlertLight {
		timeout = expireMillis(opts.AlertLightTimeout)
	}

	return &Notification{
		AppName:       opts.AppName,
		AppIcon:       icon,
		Summary:       p.Title,
		Body:          p.Message,
		Actions:       dialogActions(p.Type, opts.Labels),
		Hints:         dialogHints(p, requestID, progress),
		ExpireTimeout: timeout,
	}
}

// serviceNotification renders a service alert as Notify arguments.
func serviceNotification(a popup.ServiceAlert, opts HostOptions) *Notification {
	icon := a.Icon
	if icon == "" {
		icon = opts.DefaultIcon
	}

	actions := []string{}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(UrgencyNormal),
	}
	if a.Action != popup.ServiceActionNone {
		actions = append(actions, ActionDefault, opts.Labels.Confirm, ActionConfirm, opts.Labels.Confirm)
		hints[HintServiceAction] = dbus.MakeVariant(string(a.Action))
	}

	return &Notification{
		AppName:       opts.AppName,
		AppIcon:       icon,
		Summary:       a.Title,
		Body:          a.Message,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: expireMillis(opts.ExpireTimeout),
	}
}

// expireMillis converts a timeout to Notify's expire_timeout. Zero means server default.
func expireMillis(d time.Duration) int32 {
	if d <= 0 {
		return -1
	}
	return int32(d.Milliseconds())
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
