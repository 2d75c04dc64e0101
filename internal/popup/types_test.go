package popup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialogType(t *testing.T) {
	tests := []struct {
		input    string
		expected DialogType
		wantErr  bool
	}{
		{"choice", DialogChoice, false},
		{"ALERT", DialogAlert, false},
		{"progress_not_cancelable", DialogProgressNotCancelable, false},
		{" spinner-not-cancelable ", DialogSpinnerNotCancelable, false},
		{"alert-light", DialogAlertLight, false},
		{"no-button", DialogNoButton, false},
		{"toast", DialogNone, true},
		{"", DialogNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialogType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDialogTypeNames(t *testing.T) {
	names := DialogTypeNames()
	assert.Len(t, names, 8)
	assert.NotContains(t, names, "none")
	assert.Equal(t, "choice", names[0])
	assert.Equal(t, "alert-light", names[len(names)-1])
}

func TestDialogTypeCapabilities(t *testing.T) {
	tests := []struct {
		dtype      DialogType
		confirm    bool
		cancelable bool
		progress   bool
		spinner    bool
		restorable bool
	}{
		{DialogChoice, true, true, false, false, true},
		{DialogAlert, true, false, false, false, true},
		{DialogProgress, false, true, true, false, true},
		{DialogProgressNotCancelable, false, false, true, false, true},
		{DialogSpinner, false, true, false, true, true},
		{DialogSpinnerNotCancelable, false, false, false, true, true},
		{DialogNoButton, false, false, false, false, true},
		{DialogAlertLight, true, false, false, false, false},
		{DialogNone, false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.dtype.String(), func(t *testing.T) {
			assert.Equal(t, tt.confirm, tt.dtype.HasConfirm())
			assert.Equal(t, tt.cancelable, tt.dtype.Cancelable())
			assert.Equal(t, tt.progress, tt.dtype.HasProgress())
			assert.Equal(t, tt.spinner, tt.dtype.HasSpinner())
			assert.Equal(t, tt.restorable, tt.dtype.Restorable())
		})
	}
}

func TestFlagsFor(t *testing.T) {
	assert.Equal(t, FlagNewTask, flagsFor(DialogChoice))

	light := flagsFor(DialogAlertLight)
	assert.True(t, light.Has(FlagNewTask))
	assert.True(t, light.Has(FlagOneShot))
	assert.True(t, light.Has(FlagNoHistory))
}

func TestCallback(t *testing.T) {
	assert.False(t, Callback{}.IsSet())
	assert.False(t, Call(nil).IsSet())

	called := false
	cb := Call(func() { called = true })
	require.True(t, cb.IsSet())
	cb.Run()
	assert.True(t, called)

	assert.NotPanics(t, func() { Callback{}.Run() })
}

func TestNewRequest(t *testing.T) {
	a := newRequest(KindShow)
	b := newRequest(KindHide)

	assert.Len(t, a.ID, 26)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, KindHide, b.Kind)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Peek())
	assert.Nil(t, q.Pop())

	a, b := newRequest(KindShow), newRequest(KindHide)
	q.Push(a)
	q.Push(b)
	assert.Equal(t, 2, q.Len())

	assert.Same(t, a, q.Peek())
	assert.Same(t, a, q.Pop())
	assert.Same(t, b, q.Pop())
	assert.Equal(t, 0, q.Len())
}
