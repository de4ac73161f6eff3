// Package display renders transcript snapshots and session state to a
// plain terminal. It is the in-tree stand-in for the display collaborator:
// it only reads log snapshots and session status, never the pipeline
// internals.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/transcript"
)

// Console implements ports.EventSink and renders transcript snapshots. New
// committed text is printed permanently; the trailing partial is redrawn in
// place on the current line.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	committed int
	lastLine  int
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// StateChanged prints session lifecycle updates.
func (c *Console) StateChanged(state domain.SessionState, reason domain.StateReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLine()
	fmt.Fprintf(c.out, "-- %s (%s)\n", state, reason)
}

// SessionError prints user-visible pipeline errors.
func (c *Console) SessionError(code domain.ErrorCode, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLine()
	fmt.Fprintf(c.out, "!! %s: %s\n", code, detail)
}

// Render draws a snapshot: committed segments not yet printed become
// permanent lines, the partial is redrawn in place.
func (c *Console) Render(snap transcript.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ; c.committed < len(snap.Committed); c.committed++ {
		c.clearLine()
		fmt.Fprintln(c.out, snap.Committed[c.committed].Text)
	}

	if snap.HasPartial {
		c.clearLine()
		fmt.Fprintf(c.out, "\r%s", snap.Partial)
		c.lastLine = len(snap.Partial)
	} else if c.lastLine > 0 {
		c.clearLine()
	}
}

// Follow polls the log at the given refresh rate until stop is closed. The
// display context never blocks capture or network progress.
func (c *Console) Follow(log *transcript.Log, refresh time.Duration, stop <-chan struct{}) {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			c.Render(log.Snapshot())
			return
		case <-ticker.C:
			c.Render(log.Snapshot())
		}
	}
}

func (c *Console) clearLine() {
	if c.lastLine > 0 {
		fmt.Fprintf(c.out, "\r%s\r", strings.Repeat(" ", c.lastLine))
		c.lastLine = 0
	}
}
