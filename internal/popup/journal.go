package popup

import (
	"sync"
	"time"
)

// EntryStatus is the on-screen status of a journaled dialog.
type EntryStatus int

const (
	// EntryShowing means the dialog is currently on screen.
	EntryShowing EntryStatus = iota
	// EntryReplaced means a later request was merged over the dialog.
	EntryReplaced
	// EntryClosed means the dialog's host was destroyed.
	EntryClosed
)

// String returns the string representation of EntryStatus.
func (s EntryStatus) String() string {
	switch s {
	case EntryShowing:
		return "showing"
	case EntryReplaced:
		return "replaced"
	case EntryClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry records one dialog that reached the screen.
type Entry struct {
	ID         string      `json:"id" yaml:"id"`
	Type       DialogType  `json:"-" yaml:"-"`
	TypeName   string      `json:"type" yaml:"type"`
	Title      string      `json:"title" yaml:"title"`
	Message    string      `json:"message" yaml:"message"`
	Status     EntryStatus `json:"-" yaml:"-"`
	StatusName string      `json:"status" yaml:"status"`
	Restorable bool        `json:"restorable" yaml:"restorable"`
	ShownAt    time.Time   `json:"shown_at" yaml:"shown_at"`
	ClosedAt   time.Time   `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`

	payload   Payload
	onConfirm Callback
	onCancel  Callback
}

// Journal keeps a bounded, in-memory record of dialogs that reached the screen.
type Journal struct {
	mu      sync.RWMutex
	entries []*Entry // oldest first
	limit   int
}

// NewJournal creates a journal keeping at most limit entries (minimum 1).
func NewJournal(limit int) *Journal {
	if limit < 1 {
		limit = 1
	}
	return &Journal{limit: limit}
}

// SetLimit changes the maximum number of entries, trimming the oldest.
func (j *Journal) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.limit = limit
	j.trimLocked()
}

// open records req as the dialog now on screen, marking the previous one replaced.
func (j *Journal) open(req *Request) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	if last := j.showingLocked(); last != nil {
		last.setStatus(EntryReplaced)
		last.ClosedAt = now
	}

	e := &Entry{
		ID:         req.ID,
		Type:       req.Payload.Type,
		TypeName:   req.Payload.Type.String(),
		Title:      req.Payload.Title,
		Message:    req.Payload.Message,
		Restorable: req.Payload.Type.Restorable(),
		ShownAt:    now,
		payload:    req.Payload,
		onConfirm:  req.OnConfirm,
		onCancel:   req.OnCancel,
	}
	e.setStatus(EntryShowing)
	j.entries = append(j.entries, e)
	j.trimLocked()
}

// close marks the dialog on screen as closed.
func (j *Journal) close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if last := j.showingLocked(); last != nil {
		last.setStatus(EntryClosed)
		last.ClosedAt = time.Now()
	}
}

// lastClosed returns the most recently closed entry, or nil.
func (j *Journal) lastClosed() *Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].Status == EntryClosed {
			return j.entries[i]
		}
	}
	return nil
}

// Entries returns a copy of the journal, newest first.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		out = append(out, *j.entries[i])
	}
	return out
}

// Len returns the number of journaled entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

func (j *Journal) showingLocked() *Entry {
	if len(j.entries) == 0 {
		return nil
	}
	last := j.entries[len(j.entries)-1]
	if last.Status != EntryShowing {
		return nil
	}
	return last
}

func (j *Journal) trimLocked() {
	if over := len(j.entries) - j.limit; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
	}
}

func (e *Entry) setStatus(s EntryStatus) {
	e.Status = s
	e.StatusName = s.String()
}
