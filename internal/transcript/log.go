// Package transcript holds the append-only text model built from
// partial/final transcript events. Committed segments never change once
// appended; at most one trailing partial follows them.
package transcript

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// Segment is one piece of recognized text with offsets into the logical
// transcript of its capture session and the chunk sequence range that
// produced it.
type Segment struct {
	Session  domain.CaptureSessionID
	Start    int
	End      int
	Text     string
	FirstSeq uint64
	LastSeq  uint64
}

// Snapshot is a consistent point-in-time view for the display layer.
type Snapshot struct {
	Committed  []Segment
	Partial    string
	HasPartial bool
	Segments   int
}

// Text joins the committed segments and the trailing partial for plain
// rendering.
func (s Snapshot) Text() string {
	parts := make([]string, 0, len(s.Committed)+1)
	for _, seg := range s.Committed {
		parts = append(parts, seg.Text)
	}
	if s.HasPartial {
		parts = append(parts, s.Partial)
	}
	return strings.Join(parts, " ")
}

// Log accumulates committed transcript segments. Single writer (the network
// context), multiple readers (the display context). Offsets inside a
// capture session are validated against the session's last committed end;
// a new capture session is a synchronization point and restarts offsets.
type Log struct {
	mu sync.RWMutex

	committed []Segment
	segments  int

	session  domain.CaptureSessionID
	lastEnd  int
	partial  string
	hasPart  bool
}

func NewLog() *Log {
	return &Log{}
}

// AppendFinal commits a segment. Returns ErrOutOfOrder if the segment
// starts before the session's last committed end, which also makes retried
// appends reject instead of duplicating.
func (l *Log) AppendFinal(seg Segment) error {
	if strings.TrimSpace(seg.Text) == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.enterSession(seg.Session)
	if seg.Start < l.lastEnd {
		return fmt.Errorf("%w: final segment starts at %d, committed end is %d", domain.ErrOutOfOrder, seg.Start, l.lastEnd)
	}

	l.committed = append(l.committed, seg)
	l.segments++
	l.lastEnd = seg.End
	// A final supersedes the trailing partial it covers.
	l.partial = ""
	l.hasPart = false
	return nil
}

// SetPartial replaces the single trailing uncommitted segment.
func (l *Log) SetPartial(seg Segment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.enterSession(seg.Session)
	if seg.Start < l.lastEnd {
		return fmt.Errorf("%w: partial segment starts at %d, committed end is %d", domain.ErrOutOfOrder, seg.Start, l.lastEnd)
	}

	l.partial = seg.Text
	l.hasPart = seg.Text != ""
	return nil
}

// Apply routes a transcript event into the log.
func (l *Log) Apply(event domain.TranscriptEvent) error {
	seg := Segment{
		Session:  event.Session,
		Start:    event.Start,
		End:      event.End,
		Text:     event.Text,
		FirstSeq: event.FirstSeq,
		LastSeq:  event.LastSeq,
	}
	if event.Kind == domain.TranscriptKindFinal {
		return l.AppendFinal(seg)
	}
	return l.SetPartial(seg)
}

// Snapshot returns the committed segments plus the optional trailing
// partial. O(1) with respect to history: the committed slice is shared
// copy-on-append, never mutated in place.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Committed:  l.committed[:len(l.committed):len(l.committed)],
		Partial:    l.partial,
		HasPartial: l.hasPart,
		Segments:   l.segments,
	}
}

// Watermark returns the committed end offset of the current capture
// session. A reopened stream restarts its offsets at zero; consumers rebase
// on the watermark so committed offsets stay monotonic across reconnects.
func (l *Log) Watermark() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastEnd
}

// enterSession resets per-session offset tracking when events from a new
// capture session arrive. Caller holds l.mu.
func (l *Log) enterSession(id domain.CaptureSessionID) {
	if id == l.session {
		return
	}
	l.session = id
	l.lastEnd = 0
	l.partial = ""
	l.hasPart = false
}
