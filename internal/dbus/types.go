package dbus

import (
	"github.com/godbus/dbus/v5"
)

const (
	// NotificationsInterface is the freedesktop notification interface name.
	NotificationsInterface = "org.freedesktop.Notifications"
	// NotificationsPath is the freedesktop notification object path.
	NotificationsPath = "/org/freedesktop/Notifications"
	// NotificationsBusName is the bus name of the notification server.
	NotificationsBusName = "org.freedesktop.Notifications"
)

// Action keys sent with dialog notifications.
const (
	ActionDefault = "default"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
)

// Hint keys specific to bitpop.
const (
	HintAnimation     = "x-bitpop-animation"
	HintRequestID     = "x-bitpop-request-id"
	HintServiceAction = "x-bitpop-service-action"
)

// Urgency levels defined by the notification specification.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved by the freedesktop.org notification specification.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Notification holds the arguments of an org.freedesktop.Notifications.Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ParsedActions converts the D-Bus action array to structured form.
func (n *Notification) ParsedActions() []Action {
	actions := make([]Action, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   n.Actions[i],
			Label: n.Actions[i+1],
		})
	}
	return actions
}

// Urgency extracts the urgency hint. Returns UrgencyNormal if not specified.
func (n *Notification) Urgency() byte {
	if b, ok := hint[byte](n.Hints, "urgency"); ok {
		return b
	}
	return UrgencyNormal
}

// Transient returns true if the transient hint is set.
func (n *Notification) Transient() bool {
	b, _ := hint[bool](n.Hints, "transient")
	return b
}

// Resident returns true if the resident hint is set.
func (n *Notification) Resident() bool {
	b, _ := hint[bool](n.Hints, "resident")
	return b
}

// Progress extracts the value hint. Returns -1 if not present.
func (n *Notification) Progress() int {
	v, ok := n.Hints["value"]
	if !ok {
		return -1
	}
	switch val := v.Value().(type) {
	case int32:
		return int(val)
	case uint32:
		return int(val)
	case int:
		return val
	case byte:
		return int(val)
	}
	return -1
}

// BackgroundColor extracts the bgcolor hint.
func (n *Notification) BackgroundColor() string {
	s, _ := hint[string](n.Hints, "bgcolor")
	return s
}

// Animation extracts the bitpop animation hint. Returns 0 if not present.
func (n *Notification) Animation() int {
	v, _ := hint[int32](n.Hints, HintAnimation)
	return int(v)
}

// RequestID extracts the bitpop request ID hint.
func (n *Notification) RequestID() string {
	s, _ := hint[string](n.Hints, HintRequestID)
	return s
}

// ServiceAction extracts the bitpop service action hint.
func (n *Notification) ServiceAction() string {
	s, _ := hint[string](n.Hints, HintServiceAction)
	return s
}

func hint[T any](hints map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := hints[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}
