// Package queue provides the fixed-capacity FIFO mailboxes used for all
// hand-off between sampling tasks and the telemetry publisher.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Policy selects what a producer experiences when the queue is full.
type Policy int

const (
	// Block makes Send wait until a consumer frees a slot.
	Block Policy = iota
	// DropNewest discards the item being sent.
	DropNewest
	// OverwriteOldest evicts the oldest queued item to make room.
	OverwriteOldest
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropNewest:
		return "drop"
	case OverwriteOldest:
		return "overwrite"
	}
	return "unknown"
}

// ParsePolicy converts a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return Block, nil
	case "", "drop":
		return DropNewest, nil
	case "overwrite":
		return OverwriteOldest, nil
	}
	return DropNewest, fmt.Errorf("unknown queue policy %q (valid: block, drop, overwrite)", s)
}

// Queue is a fixed-capacity FIFO safe for any number of producers and
// consumers. Length never exceeds capacity.
type Queue[T any] struct {
	name   string
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	buf      []T
	head     int // next read position
	count    int
	dropped  uint64
	overflow bool          // true while the current full episode has been logged
	space    chan struct{} // closed and replaced whenever a full queue frees a slot
}

// New creates a queue. Capacity must be positive.
func New[T any](name string, capacity int, policy Policy, logger *slog.Logger) *Queue[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("queue %s: capacity must be positive, got %d", name, capacity))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue[T]{
		name:   name,
		policy: policy,
		logger: logger,
		buf:    make([]T, capacity),
		space:  make(chan struct{}),
	}
}

// Send enqueues v according to the queue policy. Under Block it waits
// without bound for a free slot and returns only if ctx ends first.
// Under the other policies it never waits and always returns nil.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	if q.policy != Block {
		q.TrySend(v)
		return nil
	}

	for {
		q.mu.Lock()
		if q.count < len(q.buf) {
			q.push(v)
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

// TrySend enqueues v without waiting. On a full queue it applies the drop
// or overwrite policy (a Block queue drops) and reports false when v
// itself was discarded.
func (q *Queue[T]) TrySend(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count < len(q.buf) {
		q.push(v)
		return true
	}

	q.dropped++
	if !q.overflow {
		q.logger.Warn("queue full, dropping",
			"queue", q.name, "capacity", len(q.buf), "policy", q.policy.String())
		q.overflow = true
	}

	if q.policy != OverwriteOldest {
		return false
	}

	// Overwrite oldest: head is pointing at it
	q.buf[q.head] = v
	q.head = (q.head + 1) % len(q.buf)
	return true
}

// TryReceive dequeues the oldest item without waiting.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	wasFull := q.count == len(q.buf)
	q.count--

	if wasFull {
		q.overflow = false
		close(q.space)
		q.space = make(chan struct{})
	}
	return v, true
}

// push appends at the tail. Caller holds mu and has checked for room.
func (q *Queue[T]) push(v T) {
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = v
	q.count++
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Dropped returns how many items have been discarded since creation.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Name returns the queue name used in logs and status output.
func (q *Queue[T]) Name() string {
	return q.name
}

// Policy returns the full-queue policy.
func (q *Queue[T]) Policy() Policy {
	return q.policy
}
