package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// ErrQueueClosed is returned by Pop once the queue is released.
var ErrQueueClosed = errors.New("chunk queue closed")

const DefaultQueueCapacity = 40

// Queue is the bounded handoff between the capture callback and the network
// pump. Push never blocks: on overflow the oldest chunk is dropped so the
// producer keeps its real-time deadline. Pop blocks until a chunk arrives,
// the context is cancelled, or the queue is closed.
type Queue struct {
	mu      sync.Mutex
	items   []domain.Chunk
	cap     int
	dropped uint64
	closed  bool
	notify  chan struct{}

	onDrop func(total uint64)
}

// NewQueue creates a queue holding at most capacity chunks. onDrop, if
// non-nil, is invoked with the running drop total each time a chunk is
// discarded; it must not block.
func NewQueue(capacity int, onDrop func(total uint64)) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		cap:    capacity,
		notify: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// Push enqueues a chunk, dropping the oldest retained chunk on overflow.
// It reports false when the chunk displaced another or the queue is closed.
func (q *Queue) Push(chunk domain.Chunk) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	overflowed := false
	if len(q.items) >= q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		overflowed = true
	}
	q.items = append(q.items, chunk)
	total := q.dropped
	onDrop := q.onDrop
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	if overflowed && onDrop != nil {
		onDrop(total)
	}
	return !overflowed
}

// Pop removes and returns the oldest chunk, blocking until one is available.
func (q *Queue) Pop(ctx context.Context) (domain.Chunk, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			chunk := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return chunk, nil
		}
		if q.closed {
			q.mu.Unlock()
			return domain.Chunk{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Chunk{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Drain discards all queued chunks and returns how many were removed. Used
// at capture-session boundaries so chunks from different sessions never
// interleave.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = q.items[:0]
	return n
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of chunks discarded due to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close releases the queue. Pending Pop calls return ErrQueueClosed once
// the remaining chunks are consumed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
