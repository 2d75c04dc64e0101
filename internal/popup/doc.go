// Package popup serializes the presentation of dialogs.
// Producers on any goroutine enqueue show, hide and progress requests; a single
// consumer goroutine drains them against a dialog host that is created and
// destroyed asynchronously and reports its lifecycle back as events.
package popup
