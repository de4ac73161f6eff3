package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

func chunkWithSeq(seq uint64) domain.Chunk {
	return domain.Chunk{Session: "s", Seq: seq, SampleRate: 16000, Channels: 1}
}

func TestQueuePushPopFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(4, nil)
	for seq := uint64(0); seq < 4; seq++ {
		if !q.Push(chunkWithSeq(seq)) {
			t.Fatalf("push %d reported overflow", seq)
		}
	}

	for seq := uint64(0); seq < 4; seq++ {
		chunk, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if chunk.Seq != seq {
			t.Fatalf("expected seq %d, got %d", seq, chunk.Seq)
		}
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	var dropTotals []uint64
	q := NewQueue(3, func(total uint64) {
		dropTotals = append(dropTotals, total)
	})

	for seq := uint64(0); seq < 6; seq++ {
		q.Push(chunkWithSeq(seq))
	}

	if q.Len() != 3 {
		t.Fatalf("expected queue depth 3, got %d", q.Len())
	}
	if q.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", q.Dropped())
	}

	// Retained chunks are the newest three, still in FIFO order.
	for _, want := range []uint64{3, 4, 5} {
		chunk, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if chunk.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, chunk.Seq)
		}
	}

	// Drop totals increase monotonically.
	for i, total := range dropTotals {
		if total != uint64(i+1) {
			t.Fatalf("expected drop total %d, got %d", i+1, total)
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := NewQueue(2, nil)
	got := make(chan domain.Chunk, 1)
	go func() {
		chunk, err := q.Pop(context.Background())
		if err == nil {
			got <- chunk
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(chunkWithSeq(7))

	select {
	case chunk := <-got:
		if chunk.Seq != 7 {
			t.Fatalf("expected seq 7, got %d", chunk.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestQueuePopContextCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueueCloseReleasesPop(t *testing.T) {
	t.Parallel()

	q := NewQueue(2, nil)
	q.Push(chunkWithSeq(0))
	q.Close()

	// Remaining chunks are still consumable after close.
	chunk, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("pop after close failed: %v", err)
	}
	if chunk.Seq != 0 {
		t.Fatalf("unexpected seq %d", chunk.Seq)
	}

	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	if q.Push(chunkWithSeq(1)) {
		t.Fatal("push after close should be rejected")
	}
}

func TestQueueDrain(t *testing.T) {
	t.Parallel()

	q := NewQueue(4, nil)
	for seq := uint64(0); seq < 3; seq++ {
		q.Push(chunkWithSeq(seq))
	}

	if n := q.Drain(); n != 3 {
		t.Fatalf("expected 3 drained, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got depth %d", q.Len())
	}
	if q.Dropped() != 0 {
		t.Fatalf("drain must not count as drops, got %d", q.Dropped())
	}
}
