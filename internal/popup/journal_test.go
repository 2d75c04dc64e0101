package popup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func showRequest(msg string, t DialogType) *Request {
	r := newRequest(KindShow)
	r.Payload = Payload{Message: msg, Type: t}
	return r
}

func TestJournal_OpenAndClose(t *testing.T) {
	j := NewJournal(10)

	j.open(showRequest("first", DialogChoice))
	j.open(showRequest("second", DialogAlert))
	j.close()

	entries := j.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, EntryClosed, entries[0].Status)
	assert.Equal(t, "closed", entries[0].StatusName)
	assert.Equal(t, "alert", entries[0].TypeName)
	assert.False(t, entries[0].ClosedAt.IsZero())

	assert.Equal(t, "first", entries[1].Message)
	assert.Equal(t, EntryReplaced, entries[1].Status)
}

func TestJournal_CloseWithoutShowing(t *testing.T) {
	j := NewJournal(10)
	j.close()
	assert.Equal(t, 0, j.Len())

	j.open(showRequest("a", DialogAlert))
	j.close()
	j.close()

	entries := j.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryClosed, entries[0].Status)
}

func TestJournal_LastClosed(t *testing.T) {
	j := NewJournal(10)
	assert.Nil(t, j.lastClosed())

	j.open(showRequest("a", DialogChoice))
	assert.Nil(t, j.lastClosed(), "showing entries are not closed")

	j.close()
	j.open(showRequest("light", DialogAlertLight))
	j.close()

	last := j.lastClosed()
	require.NotNil(t, last)
	assert.Equal(t, "light", last.Message)
	assert.False(t, last.Restorable)
}

func TestJournal_Trim(t *testing.T) {
	j := NewJournal(2)
	for _, msg := range []string{"a", "b", "c"} {
		j.open(showRequest(msg, DialogAlert))
		j.close()
	}
	assert.Equal(t, 2, j.Len())
	assert.Equal(t, "c", j.Entries()[0].Message)

	j.SetLimit(0)
	assert.Equal(t, 1, j.Len())
}

func TestJournal_EntriesAreCopies(t *testing.T) {
	j := NewJournal(5)
	j.open(showRequest("a", DialogAlert))

	entries := j.Entries()
	entries[0].Message = "mutated"
	assert.Equal(t, "a", j.Entries()[0].Message)
}

func TestServiceLimiter(t *testing.T) {
	l := newServiceLimiter(time.Second, 2)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now.Add(500*time.Millisecond)))
	assert.True(t, l.allow("a", now.Add(2*time.Second)))

	// Evicted keys are allowed again.
	assert.True(t, l.allow("b", now))
	assert.True(t, l.allow("c", now))
	assert.True(t, l.allow("a", now.Add(2*time.Second+time.Millisecond)))
}

func TestServiceAlertKey(t *testing.T) {
	a := ServiceAlert{Title: "t", Message: "m"}
	b := ServiceAlert{Title: "t", Message: "m", Action: ServiceActionStopPlayback}
	assert.NotEqual(t, a.key(), b.key())
	assert.Equal(t, a.key(), ServiceAlert{Title: "t", Message: "m", Icon: "x"}.key())
}

func TestParseServiceAction(t *testing.T) {
	a, err := ParseServiceAction("")
	require.NoError(t, err)
	assert.Equal(t, ServiceActionNone, a)

	a, err = ParseServiceAction("stop-playback")
	require.NoError(t, err)
	assert.Equal(t, ServiceActionStopPlayback, a)

	_, err = ParseServiceAction("reboot")
	assert.Error(t, err)
}
