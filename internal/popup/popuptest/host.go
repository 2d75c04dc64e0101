// Package popuptest provides a recording dialog host for tests.
package popuptest

import (
	"fmt"
	"sync"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// Op names a recorded host call.
type Op string

// Recorded host operations.
const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpProgress  Op = "progress"
	OpDestroy   Op = "destroy"
	OpBroadcast Op = "broadcast"
)

// Call is one recorded host call.
type Call struct {
	Op       Op
	Command  popup.Command // OpCreate
	Payload  popup.Payload // OpUpdate
	Progress int           // OpProgress
	Alert    popup.ServiceAlert
}

// Host records every call it receives. With AutoAck set it acknowledges
// Create and Destroy from a separate goroutine, like a real host would.
// Otherwise tests acknowledge with AckCreated and AckDestroyed.
type Host struct {
	AutoAck bool
	// Err, if set, is returned by every call.
	Err error

	mu          sync.Mutex
	sink        popup.EventSink
	attachCount int
	calls       []Call
	outstanding int // unacknowledged create/destroy commands
	maxOut      int
	alive       bool
	creating    string // RequestID of the last create
	live        string // RequestID of the host acknowledged last
	notify      chan Call
}

// NewHost returns a host that acknowledges lifecycle commands automatically.
func NewHost() *Host {
	return &Host{AutoAck: true, notify: make(chan Call, 256)}
}

// NewManualHost returns a host whose lifecycle commands must be acknowledged
// by the test.
func NewManualHost() *Host {
	return &Host{notify: make(chan Call, 256)}
}

// Attach implements popup.Host.
func (h *Host) Attach(sink popup.EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
	h.attachCount++
}

// Create implements popup.Host.
func (h *Host) Create(cmd popup.Command) error {
	if err := h.record(Call{Op: OpCreate, Command: cmd}, true); err != nil {
		return err
	}
	h.mu.Lock()
	h.creating = cmd.RequestID
	h.mu.Unlock()
	if h.AutoAck {
		go h.AckCreated()
	}
	return nil
}

// Update implements popup.Host.
func (h *Host) Update(p popup.Payload) error {
	return h.record(Call{Op: OpUpdate, Payload: p}, false)
}

// UpdateProgress implements popup.Host.
func (h *Host) UpdateProgress(value int) error {
	return h.record(Call{Op: OpProgress, Progress: value}, false)
}

// Destroy implements popup.Host.
func (h *Host) Destroy() error {
	if err := h.record(Call{Op: OpDestroy}, true); err != nil {
		return err
	}
	if h.AutoAck {
		go h.AckDestroyed()
	}
	return nil
}

// Broadcast implements popup.Host.
func (h *Host) Broadcast(alert popup.ServiceAlert) error {
	return h.record(Call{Op: OpBroadcast, Alert: alert}, false)
}

func (h *Host) record(c Call, lifecycle bool) error {
	h.mu.Lock()
	if h.Err != nil {
		h.mu.Unlock()
		return h.Err
	}
	h.calls = append(h.calls, c)
	if lifecycle {
		h.outstanding++
		if h.outstanding > h.maxOut {
			h.maxOut = h.outstanding
		}
	}
	h.mu.Unlock()

	select {
	case h.notify <- c:
	default:
	}
	return nil
}

// AckCreated reports EventCreated for the last create.
func (h *Host) AckCreated() {
	h.Report(popup.Event{Kind: popup.EventCreated, RequestID: h.ack(true)})
}

// AckDestroyed reports EventDestroyed for the live host. Called without an
// outstanding destroy it simulates the host closing on its own.
func (h *Host) AckDestroyed() {
	h.Report(popup.Event{Kind: popup.EventDestroyed, RequestID: h.ack(false)})
}

// ack settles a lifecycle command and returns the request ID to report.
func (h *Host) ack(created bool) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outstanding > 0 {
		h.outstanding--
	}
	h.alive = created
	if created {
		h.live = h.creating
	}
	return h.live
}

// LiveID returns the request ID of the host acknowledged last.
func (h *Host) LiveID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Report forwards ev to the attached sink. It panics if nothing is attached.
func (h *Host) Report(ev popup.Event) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink == nil {
		panic(fmt.Sprintf("popuptest: %s reported before Attach", ev.Kind))
	}
	sink.Report(ev)
}

// PressConfirm simulates the user pressing the primary action.
func (h *Host) PressConfirm() {
	h.Report(popup.Event{Kind: popup.EventConfirmPressed, RequestID: h.LiveID()})
}

// PressCancel simulates the user pressing the secondary action.
func (h *Host) PressCancel() {
	h.Report(popup.Event{Kind: popup.EventCancelPressed, RequestID: h.LiveID()})
}

// Calls returns a copy of every recorded call.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Ops returns the recorded operation names in order.
func (h *Host) Ops() []Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	ops := make([]Op, len(h.calls))
	for i, c := range h.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was recorded.
func (h *Host) Count(op Op) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MaxOutstanding returns the highest number of unacknowledged create or
// destroy commands observed at once.
func (h *Host) MaxOutstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxOut
}

// Alive reports whether the last acknowledged lifecycle event was a create.
func (h *Host) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Attached returns how many times Attach was called.
func (h *Host) Attached() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attachCount
}

// Recorded returns a channel receiving each call as it is recorded.
func (h *Host) Recorded() <-chan Call {
	return h.notify
}
