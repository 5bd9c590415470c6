package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Backpressure decides what a full queue does with a new event.
type Backpressure string

const (
	// BackpressureBlock makes the producer wait for space.
	BackpressureBlock Backpressure = "block"
	// BackpressureDropOldest discards the oldest queued event.
	BackpressureDropOldest Backpressure = "drop-oldest"
)

// ParseBackpressure parses a configured policy name.
func ParseBackpressure(raw string) (Backpressure, error) {
	switch Backpressure(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BackpressureBlock:
		return BackpressureBlock, nil
	case BackpressureDropOldest, "drop_oldest":
		return BackpressureDropOldest, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", raw)
	}
}

// queue is a FIFO with a limit on counted items. Uncounted items (control
// messages) bypass the limit and are never dropped. A limit <= 0 means unbounded.
type queue[T any] struct {
	mu      sync.Mutex
	items   []T
	size    int
	limit   int
	counted func(T) bool
	closed  bool
	dropped int
	ready   chan struct{}
	space   chan struct{}
}

func newQueue[T any](limit int, counted func(T) bool) *queue[T] {
	if counted == nil {
		counted = func(T) bool { return true }
	}
	return &queue[T]{
		limit:   limit,
		counted: counted,
		ready:   make(chan struct{}),
		space:   make(chan struct{}),
	}
}

func (q *queue[T]) push(ctx context.Context, v T, policy Backpressure) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrPipelineClosed
		}

		isCounted := q.counted(v)
		if !isCounted || q.limit <= 0 || q.size < q.limit {
			q.appendLocked(v, isCounted)
			q.mu.Unlock()
			return nil
		}

		if policy == BackpressureDropOldest && q.dropOldestLocked() {
			q.appendLocked(v, isCounted)
			q.mu.Unlock()
			return nil
		}

		space := q.space
		q.mu.Unlock()

		select {
		case <-space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pop blocks until an item is available. It returns false once the queue is
// closed and drained.
func (q *queue[T]) pop() (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			if q.counted(v) {
				q.size--
				if !q.closed {
					close(q.space)
					q.space = make(chan struct{})
				}
			}
			q.mu.Unlock()
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false
		}
		ready := q.ready
		q.mu.Unlock()
		<-ready
	}
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
	close(q.space)
}

func (q *queue[T]) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *queue[T]) appendLocked(v T, isCounted bool) {
	q.items = append(q.items, v)
	if isCounted {
		q.size++
	}
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *queue[T]) dropOldestLocked() bool {
	for i, item := range q.items {
		if !q.counted(item) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		q.size--
		q.dropped++
		return true
	}
	return false
}
