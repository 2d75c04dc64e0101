package popup_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/bitpop/internal/popup"
	"github.com/jmylchreest/bitpop/internal/popup/popuptest"
)

const waitTimeout = 2 * time.Second

func startOrchestrator(t *testing.T, host popup.Host, opts popup.Options) *popup.Orchestrator {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := popup.New(host, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o
}

func nextCall(t *testing.T, h *popuptest.Host) popuptest.Call {
	t.Helper()
	select {
	case c := <-h.Recorded():
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for host call")
		return popuptest.Call{}
	}
}

func waitIdle(t *testing.T, o *popup.Orchestrator) popup.State {
	t.Helper()
	var s popup.State
	require.Eventually(t, func() bool {
		s = o.Snapshot()
		return !s.Busy && s.Pending == 0
	}, waitTimeout, time.Millisecond)
	return s
}

func waitCurrent(t *testing.T, o *popup.Orchestrator, want popup.DialogType) {
	t.Helper()
	require.Eventually(t, func() bool {
		return o.Snapshot().Current == want
	}, waitTimeout, time.Millisecond)
}

func TestOrchestrator_ChoiceConfirm(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	var okCalls, cancelCalls atomic.Int32
	accepted := o.ShowMessage("msg", "title", "", "", 0, popup.DialogChoice,
		popup.Call(func() { okCalls.Add(1) }),
		popup.Call(func() { cancelCalls.Add(1) }),
	)
	assert.True(t, accepted)

	c := nextCall(t, host)
	require.Equal(t, popuptest.OpCreate, c.Op)
	assert.Equal(t, popup.DialogChoice, c.Command.Payload.Type)
	assert.Equal(t, "msg", c.Command.Payload.Message)
	assert.True(t, c.Command.Flags.Has(popup.FlagNewTask))
	assert.False(t, c.Command.Flags.Has(popup.FlagNoHistory))
	assert.True(t, o.Snapshot().Busy)

	host.AckCreated()
	waitCurrent(t, o, popup.DialogChoice)
	assert.False(t, o.Snapshot().Busy)

	host.PressConfirm()
	require.Eventually(t, func() bool { return okCalls.Load() == 1 }, waitTimeout, time.Millisecond)

	waitIdle(t, o)
	assert.Equal(t, int32(1), okCalls.Load())
	assert.Equal(t, int32(0), cancelCalls.Load())
	assert.Equal(t, 1, host.Count(popuptest.OpCreate))
	assert.Equal(t, 1, host.Attached())
}

func TestOrchestrator_UpdateProgressBar(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "flashing", Type: popup.DialogProgress}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogProgress)
	before := waitIdle(t, o).Pending
	nextCall(t, host) // create

	o.UpdateProgressBar(42)

	c := nextCall(t, host)
	require.Equal(t, popuptest.OpProgress, c.Op)
	assert.Equal(t, 42, c.Progress)

	after := waitIdle(t, o)
	assert.Equal(t, before, after.Pending)
	assert.Equal(t, popup.DialogProgress, after.Current)
}

func TestOrchestrator_UpdateProgressWithoutDialogDropped(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.UpdateProgressBar(10)
	waitIdle(t, o)

	assert.Empty(t, host.Calls())
	assert.Equal(t, popup.DialogNone, o.Snapshot().Current)
}

func TestOrchestrator_HideWithNothingShowing(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Hide()
	o.Hide()
	s := waitIdle(t, o)

	assert.Empty(t, host.Calls())
	assert.Equal(t, popup.DialogNone, s.Current)
	assert.Empty(t, s.ActiveID)
}

func TestOrchestrator_HideTwice(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "hello", Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)
	host.AckCreated()
	waitCurrent(t, o, popup.DialogAlert)

	o.Hide()
	o.Hide()

	require.Equal(t, popuptest.OpDestroy, nextCall(t, host).Op)
	require.Eventually(t, func() bool {
		s := o.Snapshot()
		return s.Busy && s.Pending == 2
	}, waitTimeout, time.Millisecond, "second hide should wait behind the outstanding destroy")

	host.AckDestroyed()
	s := waitIdle(t, o)

	assert.Equal(t, popup.DialogNone, s.Current)
	assert.Equal(t, 1, host.Count(popuptest.OpDestroy))
}

func TestOrchestrator_ShowDuringCreateMerges(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "A", Type: popup.DialogSpinner}, popup.Callback{}, popup.Callback{})
	first := nextCall(t, host)
	require.Equal(t, popuptest.OpCreate, first.Op)

	o.Show(popup.Payload{Message: "B", Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	require.Eventually(t, func() bool { return o.Snapshot().Pending == 2 }, waitTimeout, time.Millisecond)
	assert.Equal(t, 1, host.Count(popuptest.OpCreate))

	host.AckCreated()

	c := nextCall(t, host)
	require.Equal(t, popuptest.OpUpdate, c.Op)
	assert.Equal(t, "B", c.Payload.Message)

	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogAlert, s.Current)
	assert.NotEqual(t, first.Command.RequestID, s.ActiveID)
	assert.Equal(t, []popuptest.Op{popuptest.OpCreate, popuptest.OpUpdate}, host.Ops())
}

func TestOrchestrator_MergeThenHide(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	var aConfirmed, bConfirmed atomic.Int32
	o.Show(popup.Payload{Message: "A", Type: popup.DialogChoice},
		popup.Call(func() { aConfirmed.Add(1) }), popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)

	o.Show(popup.Payload{Message: "B", Type: popup.DialogChoice},
		popup.Call(func() { bConfirmed.Add(1) }), popup.Callback{})
	o.Hide()
	require.Eventually(t, func() bool { return o.Snapshot().Pending == 3 }, waitTimeout, time.Millisecond)

	host.AckCreated()
	require.Equal(t, popuptest.OpUpdate, nextCall(t, host).Op)
	require.Equal(t, popuptest.OpDestroy, nextCall(t, host).Op)

	// The merged request is the active one until the destroy completes.
	host.PressConfirm()
	require.Eventually(t, func() bool { return bConfirmed.Load() == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, int32(0), aConfirmed.Load())

	host.AckDestroyed()
	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogNone, s.Current)
	assert.Equal(t, 1, host.Count(popuptest.OpCreate))
	assert.Equal(t, 1, host.Count(popuptest.OpDestroy))

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, "B", history[0].Message)
	assert.Equal(t, popup.EntryClosed, history[0].Status)
	assert.Equal(t, "A", history[1].Message)
	assert.Equal(t, popup.EntryReplaced, history[1].Status)
}

func TestOrchestrator_UnsetCallbackHides(t *testing.T) {
	tests := []struct {
		name  string
		dtype popup.DialogType
		press func(*popuptest.Host)
	}{
		{"confirm", popup.DialogAlert, (*popuptest.Host).PressConfirm},
		{"cancel", popup.DialogSpinner, (*popuptest.Host).PressCancel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := popuptest.NewHost()
			o := startOrchestrator(t, host, popup.Options{})

			o.Show(popup.Payload{Message: "x", Type: tt.dtype}, popup.Callback{}, popup.Callback{})
			waitCurrent(t, o, tt.dtype)

			tt.press(host)
			waitCurrent(t, o, popup.DialogNone)
			assert.Equal(t, 1, host.Count(popuptest.OpDestroy))
		})
	}
}

func TestOrchestrator_PressWithNothingShowing(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogAlert)
	o.Hide()
	waitCurrent(t, o, popup.DialogNone)

	host.PressConfirm()
	waitIdle(t, o)
	assert.Equal(t, 1, host.Count(popuptest.OpDestroy))
}

func TestOrchestrator_ConcurrentProducers(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	types := []popup.DialogType{
		popup.DialogChoice, popup.DialogAlert, popup.DialogProgress,
		popup.DialogSpinner, popup.DialogNoButton, popup.DialogAlertLight,
	}

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				switch rng.Intn(3) {
				case 0:
					o.Show(popup.Payload{Message: "m", Type: types[rng.Intn(len(types))]},
						popup.Callback{}, popup.Callback{})
				case 1:
					o.Hide()
				case 2:
					o.UpdateProgressBar(rng.Intn(101))
				}
			}
		}(int64(p))
	}
	wg.Wait()

	o.Hide()
	s := waitIdle(t, o)

	assert.Equal(t, popup.DialogNone, s.Current)
	assert.LessOrEqual(t, host.MaxOutstanding(), 1)
	assert.Equal(t, host.Count(popuptest.OpCreate), host.Count(popuptest.OpDestroy))
	assert.False(t, host.Alive())
}

func TestOrchestrator_Restore(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	assert.ErrorIs(t, o.Restore(), popup.ErrNotRestorable)

	var confirmed atomic.Int32
	o.Show(popup.Payload{Message: "update ready", Title: "micro:bit", Type: popup.DialogChoice},
		popup.Call(func() { confirmed.Add(1) }), popup.Callback{})
	waitCurrent(t, o, popup.DialogChoice)

	assert.ErrorIs(t, o.Restore(), popup.ErrDialogShowing)

	o.Hide()
	waitCurrent(t, o, popup.DialogNone)

	require.NoError(t, o.Restore())
	waitCurrent(t, o, popup.DialogChoice)

	creates := 0
	for _, c := range host.Calls() {
		if c.Op == popuptest.OpCreate {
			creates++
			assert.Equal(t, "update ready", c.Command.Payload.Message)
		}
	}
	assert.Equal(t, 2, creates)

	// Callbacks survive restoration.
	host.PressConfirm()
	require.Eventually(t, func() bool { return confirmed.Load() == 1 }, waitTimeout, time.Millisecond)
}

func TestOrchestrator_AlertLightNeverRestored(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "copied", Type: popup.DialogAlertLight}, popup.Callback{}, popup.Callback{})
	c := nextCall(t, host)
	require.Equal(t, popuptest.OpCreate, c.Op)
	assert.True(t, c.Command.Flags.Has(popup.FlagOneShot|popup.FlagNoHistory))

	host.AckCreated()
	waitCurrent(t, o, popup.DialogAlertLight)

	o.Hide()
	require.Equal(t, popuptest.OpDestroy, nextCall(t, host).Op)
	host.AckDestroyed()
	waitCurrent(t, o, popup.DialogNone)

	assert.ErrorIs(t, o.Restore(), popup.ErrNotRestorable)
	waitIdle(t, o)
	assert.Equal(t, 1, host.Count(popuptest.OpCreate))

	// A fresh show still works.
	o.Show(popup.Payload{Message: "copied", Type: popup.DialogAlertLight}, popup.Callback{}, popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)
}

func TestOrchestrator_ExternalDestroy(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Type: popup.DialogNoButton}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogNoButton)

	// The host is closed by something other than the orchestrator.
	host.AckDestroyed()
	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogNone, s.Current)
	assert.Empty(t, s.ActiveID)

	o.Show(popup.Payload{Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogAlert)
	assert.Equal(t, 2, host.Count(popuptest.OpCreate))
}

func TestOrchestrator_ServiceAlerts(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{ServiceMinInterval: time.Hour})

	stopped := make(chan struct{}, 1)
	o.HandleServiceAction(popup.ServiceActionStopPlayback, func() { stopped <- struct{}{} })

	alert := popup.ServiceAlert{
		Title:   "Playback",
		Message: "Stop playing?",
		Action:  popup.ServiceActionStopPlayback,
	}
	assert.True(t, o.ShowFromService(alert))
	assert.False(t, o.ShowFromService(alert), "duplicate alert should be rate-limited")

	other := alert
	other.Message = "Something else"
	assert.True(t, o.ShowFromService(other))

	assert.Equal(t, 2, host.Count(popuptest.OpBroadcast))
	assert.Equal(t, 1, host.Attached())

	host.Report(popup.Event{Kind: popup.EventServiceAction, Action: popup.ServiceActionStopPlayback})
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("service action handler not called")
	}

	// Service alerts never touch the queued dialog state.
	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogNone, s.Current)
}

func TestOrchestrator_ServiceAlertIntervalChange(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{ServiceMinInterval: time.Hour})

	alert := popup.ServiceAlert{Title: "t", Message: "m"}
	assert.True(t, o.ShowFromService(alert))
	assert.False(t, o.ShowFromService(alert))

	o.SetServiceMinInterval(time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.True(t, o.ShowFromService(alert))
}

func TestOrchestrator_ServiceAlertHostError(t *testing.T) {
	host := popuptest.NewHost()
	host.Err = errors.New("bus gone")
	o := startOrchestrator(t, host, popup.Options{})

	assert.False(t, o.ShowFromService(popup.ServiceAlert{Title: "t"}))
}

func TestOrchestrator_RunTwice(t *testing.T) {
	o := popup.New(popuptest.NewHost(), popup.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, o.Run(ctx), context.Canceled)
	assert.ErrorIs(t, o.Run(context.Background()), popup.ErrAlreadyRunning)
}

func TestOrchestrator_EventsAfterShutdown(t *testing.T) {
	host := popuptest.NewManualHost()
	o := popup.New(host, popup.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	o.Show(popup.Payload{Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	reported := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			host.AckCreated()
		}
		close(reported)
	}()
	select {
	case <-reported:
	case <-time.After(waitTimeout):
		t.Fatal("Report blocked after shutdown")
	}
}

func TestOrchestrator_JournalLength(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{JournalLength: 2})

	for _, msg := range []string{"one", "two", "three"} {
		o.Show(popup.Payload{Message: msg, Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	}
	waitIdle(t, o)

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, "three", history[0].Message)
	assert.Equal(t, "two", history[1].Message)

	o.SetJournalLength(1)
	assert.Len(t, o.History(), 1)
}

func TestOrchestrator_BoundCancelRunsOnce(t *testing.T) {
	host := popuptest.NewHost()
	o := startOrchestrator(t, host, popup.Options{})

	var okCalls, cancelCalls atomic.Int32
	o.Show(popup.Payload{Message: "Pair?", Type: popup.DialogChoice},
		popup.Call(func() { okCalls.Add(1) }),
		popup.Call(func() { cancelCalls.Add(1) }),
	)
	waitCurrent(t, o, popup.DialogChoice)

	host.PressCancel()
	require.Eventually(t, func() bool { return cancelCalls.Load() == 1 }, waitTimeout, time.Millisecond)

	// A bound callback owns the dialog; nothing hides it.
	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogChoice, s.Current)
	assert.Equal(t, int32(1), cancelCalls.Load())
	assert.Equal(t, int32(0), okCalls.Load())
	assert.Equal(t, 0, host.Count(popuptest.OpDestroy))
}

func TestOrchestrator_HideBeforeCreated(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "Flashing", Type: popup.DialogProgress}, popup.Callback{}, popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)

	o.Hide()
	require.Eventually(t, func() bool {
		s := o.Snapshot()
		return s.Busy && s.Pending == 2
	}, waitTimeout, time.Millisecond, "hide should queue behind the unacknowledged show")
	assert.Equal(t, 0, host.Count(popuptest.OpDestroy))

	host.AckCreated()
	require.Equal(t, popuptest.OpDestroy, nextCall(t, host).Op)

	host.AckDestroyed()
	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogNone, s.Current)
	assert.Equal(t, []popuptest.Op{popuptest.OpCreate, popuptest.OpDestroy}, host.Ops())
}

func TestOrchestrator_StaleEventsDropped(t *testing.T) {
	host := popuptest.NewManualHost()
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "A", Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)
	host.AckCreated()
	waitCurrent(t, o, popup.DialogAlert)
	first := host.LiveID()

	o.Hide()
	require.Equal(t, popuptest.OpDestroy, nextCall(t, host).Op)
	host.AckDestroyed()
	waitIdle(t, o)

	var okCalls, cancelCalls atomic.Int32
	o.Show(popup.Payload{Message: "B", Type: popup.DialogChoice},
		popup.Call(func() { okCalls.Add(1) }),
		popup.Call(func() { cancelCalls.Add(1) }),
	)
	require.Equal(t, popuptest.OpCreate, nextCall(t, host).Op)
	host.AckCreated()
	waitCurrent(t, o, popup.DialogChoice)

	// Redelivered and unattributed events for the first dialog.
	host.Report(popup.Event{Kind: popup.EventDestroyed, RequestID: first})
	host.Report(popup.Event{Kind: popup.EventCreated, RequestID: first})
	host.Report(popup.Event{Kind: popup.EventConfirmPressed, RequestID: first})
	host.Report(popup.Event{Kind: popup.EventDestroyed})

	// Events are handled in order, so once this press lands the ones
	// before it have been dropped.
	host.PressCancel()
	require.Eventually(t, func() bool { return cancelCalls.Load() == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, int32(0), okCalls.Load())
	assert.Equal(t, popup.DialogChoice, o.Snapshot().Current)

	o.Show(popup.Payload{Message: "C", Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	c := nextCall(t, host)
	require.Equal(t, popuptest.OpUpdate, c.Op, "show should merge into the live dialog")
	assert.Equal(t, "C", c.Payload.Message)

	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogAlert, s.Current)
	assert.Equal(t, 2, host.Count(popuptest.OpCreate))
}

// burstHost reports a burst of events from inside Update, the way a host
// with its own event loop reports while the orchestrator waits on it.
type burstHost struct {
	*popuptest.Host
	n int
}

func (h *burstHost) Update(p popup.Payload) error {
	for i := 0; i < h.n; i++ {
		h.Report(popup.Event{Kind: popup.EventConfirmPressed, RequestID: "gone"})
	}
	return h.Host.Update(p)
}

func TestOrchestrator_HostReportsDuringUpdate(t *testing.T) {
	host := &burstHost{Host: popuptest.NewHost(), n: 500}
	o := startOrchestrator(t, host, popup.Options{})

	o.Show(popup.Payload{Message: "A", Type: popup.DialogSpinner}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogSpinner)

	o.Show(popup.Payload{Message: "B", Type: popup.DialogAlert}, popup.Callback{}, popup.Callback{})
	waitCurrent(t, o, popup.DialogAlert)

	s := waitIdle(t, o)
	assert.Equal(t, popup.DialogAlert, s.Current)
	assert.Equal(t, 1, host.Count(popuptest.OpUpdate))
	assert.Equal(t, 0, host.Count(popuptest.OpDestroy))
}
