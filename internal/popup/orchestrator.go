package popup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNotRestorable is returned by Restore when there is no closed dialog
	// that may be reconstructed.
	ErrNotRestorable = errors.New("no restorable dialog in history")
	// ErrDialogShowing is returned by Restore while a dialog is on screen.
	ErrDialogShowing = errors.New("a dialog is already showing")
	// ErrAlreadyRunning is returned when Run is called on a running orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Options configures an Orchestrator.
type Options struct {
	Logger             *slog.Logger
	JournalLength      int           // Max journaled dialogs (default 50)
	ServiceMinInterval time.Duration // Min gap between identical service alerts (default 5s)
	ServiceMaxKeys     int           // Distinct service alerts tracked for rate limiting (default 64)
}

// State is a point-in-time view of the orchestrator.
type State struct {
	Current  DialogType
	Busy     bool
	Pending  int
	ActiveID string // ID of the request whose dialog is on screen
}

// Orchestrator owns the request queue and drives a single dialog host.
// All state transitions happen on the goroutine running Run.
type Orchestrator struct {
	host    Host
	logger  *slog.Logger
	queue   *Queue
	journal *Journal
	limiter *serviceLimiter

	evMu       sync.Mutex
	events     []Event // reported, not yet handled
	evReady    chan struct{}
	wake       chan struct{}
	stopped    chan struct{}
	running    atomic.Bool
	attachOnce sync.Once

	// Written only by the consumer goroutine; mu lets Snapshot read them.
	mu       sync.Mutex
	current  DialogType
	busy     bool
	active   *Request // request bound to the dialog on screen
	inflight *Request // dispatched create/destroy awaiting acknowledgment
	hostID   string   // ID of the request whose create produced the live host

	handlersMu sync.RWMutex
	handlers   map[ServiceAction]func()
}

// New creates an orchestrator driving host. Nothing runs until Run is called.
func New(host Host, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JournalLength == 0 {
		opts.JournalLength = 50
	}
	if opts.ServiceMinInterval == 0 {
		opts.ServiceMinInterval = 5 * time.Second
	}

	return &Orchestrator{
		host:     host,
		logger:   opts.Logger,
		queue:    NewQueue(),
		journal:  NewJournal(opts.JournalLength),
		limiter:  newServiceLimiter(opts.ServiceMinInterval, opts.ServiceMaxKeys),
		evReady:  make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		current:  DialogNone,
		handlers: make(map[ServiceAction]func()),
	}
}

// Run is the consumer loop. It blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.stopped)

	o.logger.Debug("popup orchestrator started")
	o.drain()

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("popup orchestrator stopped", "pending", o.queue.Len())
			return ctx.Err()
		case <-o.wake:
			o.drain()
		case <-o.evReady:
			for _, ev := range o.takeEvents() {
				o.handleEvent(ev)
			}
		}
	}
}

// Show enqueues a dialog. It always accepts the request and returns true.
// An unset callback hides the dialog when its button is pressed.
func (o *Orchestrator) Show(p Payload, onConfirm, onCancel Callback) bool {
	req := newRequest(KindShow)
	req.Payload = p
	req.OnConfirm = onConfirm
	req.OnCancel = onCancel
	o.enqueue(req)
	return true
}

// ShowMessage is the positional form of Show.
func (o *Orchestrator) ShowMessage(message, title, icon, iconBg string, animation int, t DialogType, onConfirm, onCancel Callback) bool {
	return o.Show(Payload{
		Message:        message,
		Title:          title,
		Icon:           icon,
		IconBackground: iconBg,
		Animation:      animation,
		Type:           t,
	}, onConfirm, onCancel)
}

// Hide enqueues a request to tear down the dialog on screen.
// With nothing on screen it is dropped once drained.
func (o *Orchestrator) Hide() {
	o.enqueue(newRequest(KindHide))
}

// UpdateProgressBar enqueues a progress value for the dialog on screen.
func (o *Orchestrator) UpdateProgressBar(value int) {
	req := newRequest(KindUpdateProgress)
	req.Progress = value
	o.enqueue(req)
}

// ShowFromService sends a service alert straight to the host, bypassing the
// queue. Duplicate alerts within the configured interval are dropped and
// false is returned. It does not coordinate with Show or Hide.
func (o *Orchestrator) ShowFromService(alert ServiceAlert) bool {
	if !o.limiter.allow(alert.key(), time.Now()) {
		o.logger.Debug("service alert rate-limited", "title", alert.Title)
		return false
	}

	o.attach()
	if err := o.host.Broadcast(alert); err != nil {
		o.logger.Warn("failed to broadcast service alert", "title", alert.Title, "error", err)
		return false
	}

	o.logger.Debug("broadcast service alert", "title", alert.Title, "action", alert.Action)
	return true
}

// HandleServiceAction registers fn to run when a service alert carrying
// action is confirmed. fn runs on the consumer goroutine.
func (o *Orchestrator) HandleServiceAction(action ServiceAction, fn func()) {
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	o.handlers[action] = fn
}

// Restore re-shows the most recently closed dialog with its original payload
// and callbacks. Alert-light dialogs are never restored.
func (o *Orchestrator) Restore() error {
	o.mu.Lock()
	current := o.current
	o.mu.Unlock()
	if current != DialogNone {
		return ErrDialogShowing
	}

	entry := o.journal.lastClosed()
	if entry == nil || !entry.Restorable {
		return ErrNotRestorable
	}

	o.logger.Debug("restoring dialog", "from_id", entry.ID, "dialog_type", entry.Type)
	o.Show(entry.payload, entry.onConfirm, entry.onCancel)
	return nil
}

// Snapshot returns the current state. Safe from any goroutine.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Current: o.current,
		Busy:    o.busy,
		Pending: o.queue.Len(),
	}
	if o.active != nil {
		s.ActiveID = o.active.ID
	}
	return s
}

// History returns the journaled dialogs, newest first.
func (o *Orchestrator) History() []Entry {
	return o.journal.Entries()
}

// SetServiceMinInterval changes the duplicate window for service alerts.
func (o *Orchestrator) SetServiceMinInterval(d time.Duration) {
	o.limiter.setMinInterval(d)
}

// SetJournalLength changes how many dialogs the journal keeps.
func (o *Orchestrator) SetJournalLength(n int) {
	o.journal.SetLimit(n)
}

// enqueue appends req and wakes the consumer. It never blocks.
func (o *Orchestrator) enqueue(req *Request) {
	o.queue.Push(req)
	o.logger.Debug("enqueued popup request",
		"request_id", req.ID,
		"kind", req.Kind,
		"queue_len", o.queue.Len(),
	)

	select {
	case o.wake <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
}

// attach registers the event sink with the host exactly once.
func (o *Orchestrator) attach() {
	o.attachOnce.Do(func() {
		o.host.Attach(eventSink{o})
		o.logger.Debug("attached dialog host listener")
	})
}

// drain processes queued requests until the queue is empty or a lifecycle
// command is outstanding. Consumer goroutine only.
func (o *Orchestrator) drain() {
	for !o.busy {
		req := o.queue.Peek()
		if req == nil {
			return
		}

		switch req.Kind {
		case KindShow:
			o.attach()
			if o.current != DialogNone {
				o.merge(req)
				continue
			}
			o.dispatchCreate(req)
			return

		case KindHide:
			if o.current == DialogNone {
				o.queue.Pop()
				o.logger.Debug("skipping hide with no dialog showing", "request_id", req.ID)
				continue
			}
			o.dispatchDestroy(req)
			return

		case KindUpdateProgress:
			o.queue.Pop()
			if o.current == DialogNone {
				o.logger.Debug("dropping progress update with no dialog showing",
					"request_id", req.ID, "value", req.Progress)
				continue
			}
			if err := o.host.UpdateProgress(req.Progress); err != nil {
				o.logger.Warn("failed to update progress", "value", req.Progress, "error", err)
			}

		default:
			o.queue.Pop()
			o.logger.Warn("dropping request of unknown kind", "request_id", req.ID, "kind", req.Kind)
		}
	}
}

// merge restyles the host on screen with req instead of creating a new one.
func (o *Orchestrator) merge(req *Request) {
	if err := o.host.Update(req.Payload); err != nil {
		o.logger.Warn("failed to update dialog host", "request_id", req.ID, "error", err)
	}
	o.queue.Pop()

	o.mu.Lock()
	from := o.current
	o.current = req.Payload.Type
	o.active = req
	o.mu.Unlock()

	o.journal.open(req)
	o.logger.Debug("merged dialog into existing host",
		"request_id", req.ID,
		"from_type", from,
		"dialog_type", req.Payload.Type,
	)
}

func (o *Orchestrator) dispatchCreate(req *Request) {
	o.setInflight(req)

	cmd := Command{
		RequestID: req.ID,
		Payload:   req.Payload,
		Flags:     flagsFor(req.Payload.Type),
	}
	if err := o.host.Create(cmd); err != nil {
		// Without a CREATED event the queue stays stalled behind this request.
		o.logger.Error("dialog host creation failed", "request_id", req.ID, "error", err)
		return
	}
	o.logger.Debug("dispatched host creation",
		"request_id", req.ID,
		"dialog_type", req.Payload.Type,
		"flags", cmd.Flags,
	)
}

func (o *Orchestrator) dispatchDestroy(req *Request) {
	o.setInflight(req)

	if err := o.host.Destroy(); err != nil {
		o.logger.Error("dialog host destroy failed", "request_id", req.ID, "error", err)
		return
	}
	o.logger.Debug("dispatched host destroy", "request_id", req.ID, "dialog_type", o.current)
}

func (o *Orchestrator) setInflight(req *Request) {
	o.mu.Lock()
	o.busy = true
	o.inflight = req
	o.mu.Unlock()
}

// handleEvent applies a host event. Consumer goroutine only.
func (o *Orchestrator) handleEvent(ev Event) {
	o.logger.Debug("dialog host event",
		"event", ev.Kind,
		"request_id", ev.RequestID,
		"dialog_type", o.current,
		"busy", o.busy,
	)

	switch ev.Kind {
	case EventCreated:
		o.handleCreated(ev)
	case EventDestroyed:
		o.handleDestroyed(ev)
	case EventConfirmPressed:
		o.press(ev, func(r *Request) Callback { return r.OnConfirm })
	case EventCancelPressed:
		o.press(ev, func(r *Request) Callback { return r.OnCancel })
	case EventServiceAction:
		o.runServiceAction(ev.Action)
	default:
		o.logger.Warn("ignoring unknown dialog host event", "event", ev.Kind)
	}
}

// handleCreated acknowledges the outstanding create. Redelivered or stale
// events are dropped.
func (o *Orchestrator) handleCreated(ev Event) {
	req := o.inflight
	if req == nil || req.Kind != KindShow || ev.RequestID != req.ID {
		o.logger.Debug("dropping stale created event", "request_id", ev.RequestID, "busy", o.busy)
		return
	}
	o.popInflight(req)
	o.hostID = req.ID

	o.mu.Lock()
	o.busy = false
	o.inflight = nil
	o.current = req.Payload.Type
	o.active = req
	o.mu.Unlock()

	o.journal.open(req)
	o.drain()
}

// handleDestroyed acknowledges the outstanding destroy, or resets state when
// the live host went away on its own. Events for any other host are dropped.
func (o *Orchestrator) handleDestroyed(ev Event) {
	if o.hostID == "" || ev.RequestID != o.hostID {
		o.logger.Debug("dropping stale destroyed event", "request_id", ev.RequestID, "host_id", o.hostID)
		return
	}

	req := o.inflight
	switch {
	case req != nil && req.Kind == KindHide:
		o.popInflight(req)
	case req != nil:
		o.logger.Warn("unexpected destroyed event while creating", "request_id", req.ID)
		return
	default:
		// The host went away without being asked to.
		o.logger.Debug("dialog host destroyed externally", "dialog_type", o.current)
	}
	o.hostID = ""

	o.mu.Lock()
	o.busy = false
	o.inflight = nil
	o.current = DialogNone
	o.active = nil
	o.mu.Unlock()

	o.journal.close()
	o.drain()
}

func (o *Orchestrator) popInflight(req *Request) {
	if head := o.queue.Pop(); head != req {
		o.logger.Warn("queue head changed under outstanding request", "request_id", req.ID)
	}
}

// press runs the callback bound to the dialog on screen, or hides it when unset.
func (o *Orchestrator) press(ev Event, pick func(*Request) Callback) {
	if o.active == nil {
		o.logger.Debug("button press with no dialog showing", "event", ev.Kind)
		return
	}
	if ev.RequestID != o.hostID {
		o.logger.Debug("dropping press for a host that is gone", "event", ev.Kind, "request_id", ev.RequestID)
		return
	}

	cb := pick(o.active)
	if !cb.IsSet() {
		o.Hide()
		return
	}
	cb.Run()
}

func (o *Orchestrator) runServiceAction(action ServiceAction) {
	if action == ServiceActionNone {
		return
	}

	o.handlersMu.RLock()
	fn := o.handlers[action]
	o.handlersMu.RUnlock()

	if fn == nil {
		o.logger.Warn("no handler for service action", "action", action)
		return
	}
	fn()
}

// takeEvents returns the reported events in order and clears the buffer.
func (o *Orchestrator) takeEvents() []Event {
	o.evMu.Lock()
	defer o.evMu.Unlock()
	evs := o.events
	o.events = nil
	return evs
}

// eventSink buffers host events for the consumer goroutine.
type eventSink struct {
	o *Orchestrator
}

// Report queues ev for the consumer goroutine, or drops it once Run has
// returned. Hosts report from inside calls the consumer is blocked on, so
// it must never wait for the consumer.
func (s eventSink) Report(ev Event) {
	select {
	case <-s.o.stopped:
		s.o.logger.Debug("dropping dialog host event after shutdown", "event", ev.Kind)
		return
	default:
	}

	s.o.evMu.Lock()
	s.o.events = append(s.o.events, ev)
	s.o.evMu.Unlock()

	select {
	case s.o.evReady <- struct{}{}:
	default:
		// The consumer already has a wake-up pending.
	}
}
