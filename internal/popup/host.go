package popup

import "errors"

// Host is the contract a dialog host adapter must satisfy.
//
// Create is fire-and-forget: the host reports EventCreated through the attached
// sink once it is fully initialized. Update, UpdateProgress and Destroy are
// synchronous sends that return once the host has applied them; the teardown
// itself completes later with EventDestroyed. User interaction is reported as
// EventConfirmPressed or EventCancelPressed.
type Host interface {
	// Attach registers the sink for lifecycle events. It is called once.
	Attach(sink EventSink)

	// Create starts building a new host for the command's payload.
	Create(cmd Command) error

	// Update restyles the live host in place with a new payload.
	Update(p Payload) error

	// UpdateProgress forwards a progress value to the live host.
	UpdateProgress(value int) error

	// Destroy asks the live host to tear down.
	Destroy() error

	// Broadcast presents a service alert outside the request queue.
	Broadcast(alert ServiceAlert) error
}

// ErrNoHost is returned by adapters when no host is alive to receive a command.
var ErrNoHost = errors.New("no dialog host is alive")

// HostError wraps a failed host command.
type HostError struct {
	Op    string
	Cause error
}

func (e *HostError) Error() string {
	if e.Cause != nil {
		return "host " + e.Op + ": " + e.Cause.Error()
	}
	return "host " + e.Op + " failed"
}

func (e *HostError) Unwrap() error {
	return e.Cause
}
