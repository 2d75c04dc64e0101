package popup

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DialogType identifies the presentation a dialog host uses.
type DialogType int

const (
	// DialogNone is the sentinel for "no dialog on screen".
	DialogNone DialogType = iota
	// DialogChoice has a confirm and a cancel button.
	DialogChoice
	// DialogAlert has a single confirm button.
	DialogAlert
	// DialogProgress shows a progress bar and a cancel button.
	DialogProgress
	// DialogProgressNotCancelable shows a progress bar without buttons.
	DialogProgressNotCancelable
	// DialogSpinner shows an indeterminate spinner and a cancel button.
	DialogSpinner
	// DialogSpinnerNotCancelable shows an indeterminate spinner without buttons.
	DialogSpinnerNotCancelable
	// DialogNoButton shows a message without any buttons.
	DialogNoButton
	// DialogAlertLight is a transient alert. It is kept out of the back-history
	// and can never be reconstructed once destroyed.
	DialogAlertLight
)

var dialogTypeNames = map[DialogType]string{
	DialogNone:                  "none",
	DialogChoice:                "choice",
	DialogAlert:                 "alert",
	DialogProgress:              "progress",
	DialogProgressNotCancelable: "progress-not-cancelable",
	DialogSpinner:               "spinner",
	DialogSpinnerNotCancelable:  "spinner-not-cancelable",
	DialogNoButton:              "no-button",
	DialogAlertLight:            "alert-light",
}

// String returns the stable lowercase name of the dialog type.
func (t DialogType) String() string {
	if name, ok := dialogTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// DialogTypeNames returns the names of every showable dialog type.
func DialogTypeNames() []string {
	names := make([]string, 0, len(dialogTypeNames)-1)
	for t := DialogChoice; t <= DialogAlertLight; t++ {
		names = append(names, t.String())
	}
	return names
}

// ParseDialogType parses a dialog type name, case-insensitively.
// Underscores are accepted in place of hyphens.
func ParseDialogType(s string) (DialogType, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for t, n := range dialogTypeNames {
		if n == name {
			return t, nil
		}
	}
	return DialogNone, fmt.Errorf("unknown dialog type %q", s)
}

// HasConfirm reports whether the dialog offers a confirm (primary) action.
func (t DialogType) HasConfirm() bool {
	return t == DialogChoice || t == DialogAlert || t == DialogAlertLight
}

// Cancelable reports whether the dialog offers a cancel (secondary) action.
func (t DialogType) Cancelable() bool {
	switch t {
	case DialogChoice, DialogProgress, DialogSpinner:
		return true
	default:
		return false
	}
}

// HasProgress reports whether the dialog shows a determinate progress bar.
func (t DialogType) HasProgress() bool {
	return t == DialogProgress || t == DialogProgressNotCancelable
}

// HasSpinner reports whether the dialog shows an indeterminate spinner.
func (t DialogType) HasSpinner() bool {
	return t == DialogSpinner || t == DialogSpinnerNotCancelable
}

// Restorable reports whether a dialog of this type may be reconstructed from history.
func (t DialogType) Restorable() bool {
	return t != DialogAlertLight && t != DialogNone
}

// Payload describes what a dialog host presents.
type Payload struct {
	Message        string
	Title          string
	Icon           string
	IconBackground string
	Animation      int
	Type           DialogType
}

// Cancelable reports whether the payload's dialog can be cancelled by the user.
func (p Payload) Cancelable() bool {
	return p.Type.Cancelable()
}

// Callback is an optional button handler.
// The zero value is unset; pressing a button bound to an unset callback hides
// the dialog, as if Hide had been called.
type Callback struct {
	fn func()
}

// Call wraps fn as a Callback. A nil fn yields an unset Callback.
func Call(fn func()) Callback {
	return Callback{fn: fn}
}

// IsSet reports whether the callback has a handler.
func (c Callback) IsSet() bool {
	return c.fn != nil
}

// Run calls the handler. It does nothing when the callback is unset.
func (c Callback) Run() {
	if c.fn != nil {
		c.fn()
	}
}

// Kind is the operation a Request asks for.
type Kind int

const (
	// KindShow presents a dialog, merging into the current host if one is up.
	KindShow Kind = iota
	// KindHide tears the current host down.
	KindHide
	// KindUpdateProgress forwards a progress value to the current host.
	KindUpdateProgress
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindShow:
		return "show"
	case KindHide:
		return "hide"
	case KindUpdateProgress:
		return "update-progress"
	default:
		return "unknown"
	}
}

// Request is one queued intent. It must not be modified once enqueued.
type Request struct {
	ID         string
	Kind       Kind
	Payload    Payload // KindShow only
	Progress   int     // KindUpdateProgress only
	OnConfirm  Callback
	OnCancel   Callback
	EnqueuedAt time.Time
}

// newRequest stamps a request with a ULID and enqueue time.
func newRequest(kind Kind) *Request {
	now := time.Now()
	return &Request{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Kind:       kind,
		EnqueuedAt: now,
	}
}

// Flags modify how a host is created.
type Flags uint8

const (
	// FlagNewTask asks the host to open as a new top-level UI task.
	FlagNewTask Flags = 1 << iota
	// FlagOneShot marks a host that must not be re-created by the host itself.
	FlagOneShot
	// FlagNoHistory keeps the host out of any back-history.
	FlagNoHistory
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// flagsFor returns the creation flags for a dialog type.
func flagsFor(t DialogType) Flags {
	flags := FlagNewTask
	if t == DialogAlertLight {
		flags |= FlagOneShot | FlagNoHistory
	}
	return flags
}

// Command is a create instruction sent to a host.
type Command struct {
	RequestID string
	Payload   Payload
	Flags     Flags
}

// EventKind is the type of a lifecycle event reported by a host.
type EventKind int

const (
	// EventCreated reports that a host finished initializing and accepts commands.
	EventCreated EventKind = iota
	// EventDestroyed reports that a host was torn down.
	EventDestroyed
	// EventConfirmPressed reports a press of the primary action.
	EventConfirmPressed
	// EventCancelPressed reports a press of the secondary action.
	EventCancelPressed
	// EventServiceAction reports a confirmed service alert carrying an action.
	EventServiceAction
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	case EventConfirmPressed:
		return "confirm-pressed"
	case EventCancelPressed:
		return "cancel-pressed"
	case EventServiceAction:
		return "service-action"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification from a host.
type Event struct {
	Kind EventKind
	// RequestID is Command.RequestID of the create that produced the host.
	// Lifecycle events and presses that do not match the live host are dropped.
	RequestID string
	Action    ServiceAction // EventServiceAction only
}

// EventSink receives host events. Report may be called from any goroutine
// and never blocks.
type EventSink interface {
	Report(Event)
}
