package transcript

import (
	"errors"
	"sync"
	"testing"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

func TestLogPartialThenFinal(t *testing.T) {
	t.Parallel()

	log := NewLog()

	if err := log.SetPartial(Segment{Session: "a", Start: 0, End: 3, Text: "hel"}); err != nil {
		t.Fatalf("partial failed: %v", err)
	}
	snap := log.Snapshot()
	if snap.Text() != "hel" || !snap.HasPartial {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := log.SetPartial(Segment{Session: "a", Start: 0, End: 5, Text: "hello"}); err != nil {
		t.Fatalf("partial replace failed: %v", err)
	}
	snap = log.Snapshot()
	if snap.Text() != "hello" {
		t.Fatalf("partial did not replace: %q", snap.Text())
	}
	if snap.Segments != 0 {
		t.Fatalf("no segments should be committed yet")
	}

	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 11, Text: "hello world"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}
	snap = log.Snapshot()
	if snap.Text() != "hello world" {
		t.Fatalf("unexpected committed text: %q", snap.Text())
	}
	if snap.HasPartial {
		t.Fatal("final must supersede the trailing partial")
	}
	if snap.Segments != 1 {
		t.Fatalf("expected 1 committed segment, got %d", snap.Segments)
	}
}

func TestLogRejectsOutOfOrderFinal(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 11, Text: "hello world"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}

	// A retried append of the same committed segment is rejected, never
	// duplicated.
	err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 11, Text: "hello world"})
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	snap := log.Snapshot()
	if len(snap.Committed) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(snap.Committed))
	}

	// Later text is accepted.
	if err := log.AppendFinal(Segment{Session: "a", Start: 12, End: 17, Text: "again"}); err != nil {
		t.Fatalf("in-order final failed: %v", err)
	}
	if got := log.Snapshot().Text(); got != "hello world again" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestLogRejectsStalePartial(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 5, Text: "hello"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}

	err := log.SetPartial(Segment{Session: "a", Start: 2, End: 4, Text: "ll"})
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestLogSessionBoundaryResetsOffsets(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 5, Text: "first"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}

	// A new capture session restarts offsets at 0; committed text from
	// the previous session is untouched.
	if err := log.AppendFinal(Segment{Session: "b", Start: 0, End: 6, Text: "second"}); err != nil {
		t.Fatalf("cross-session final failed: %v", err)
	}

	snap := log.Snapshot()
	if snap.Text() != "first second" {
		t.Fatalf("unexpected text: %q", snap.Text())
	}
}

func TestLogSessionBoundaryDropsStalePartial(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.SetPartial(Segment{Session: "a", Start: 0, End: 3, Text: "hel"}); err != nil {
		t.Fatalf("partial failed: %v", err)
	}

	// Events from a new session discard the dangling partial of the old
	// one.
	if err := log.AppendFinal(Segment{Session: "b", Start: 0, End: 2, Text: "ok"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}
	snap := log.Snapshot()
	if snap.Text() != "ok" {
		t.Fatalf("unexpected text: %q", snap.Text())
	}
}

func TestLogWatermarkTracksCommittedEnd(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if got := log.Watermark(); got != 0 {
		t.Fatalf("expected zero watermark, got %d", got)
	}

	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 11, Text: "hello world", FirstSeq: 0, LastSeq: 4}); err != nil {
		t.Fatalf("final failed: %v", err)
	}
	if got := log.Watermark(); got != 11 {
		t.Fatalf("expected watermark 11, got %d", got)
	}

	// Partials do not move the watermark.
	if err := log.SetPartial(Segment{Session: "a", Start: 12, End: 15, Text: "and"}); err != nil {
		t.Fatalf("partial failed: %v", err)
	}
	if got := log.Watermark(); got != 11 {
		t.Fatalf("partial moved watermark to %d", got)
	}

	seg := log.Snapshot().Committed[0]
	if seg.FirstSeq != 0 || seg.LastSeq != 4 {
		t.Fatalf("chunk range not retained: %+v", seg)
	}
}

func TestLogApplyRoutesByKind(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.Apply(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Session: "a", Text: "hi", Start: 0, End: 2}); err != nil {
		t.Fatalf("apply partial failed: %v", err)
	}
	if err := log.Apply(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Session: "a", Text: "hi there", Start: 0, End: 8}); err != nil {
		t.Fatalf("apply final failed: %v", err)
	}

	snap := log.Snapshot()
	if snap.Text() != "hi there" || snap.HasPartial {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestLogSnapshotIsStableUnderWrites(t *testing.T) {
	t.Parallel()

	log := NewLog()
	if err := log.AppendFinal(Segment{Session: "a", Start: 0, End: 3, Text: "one"}); err != nil {
		t.Fatalf("final failed: %v", err)
	}
	snap := log.Snapshot()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		end := 4
		for i := 0; i < 100; i++ {
			_ = log.AppendFinal(Segment{Session: "a", Start: end, End: end + 1, Text: "x"})
			end += 2
		}
	}()
	wg.Wait()

	// The earlier snapshot is unaffected by subsequent appends.
	if len(snap.Committed) != 1 || snap.Committed[0].Text != "one" {
		t.Fatalf("snapshot mutated: %+v", snap.Committed)
	}
	if got := len(log.Snapshot().Committed); got != 101 {
		t.Fatalf("expected 101 segments, got %d", got)
	}
}
