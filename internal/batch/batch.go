// Package batch implements a generic debounced batcher: it accumulates
// items and flushes them either once MaxSize is reached or once
// FlushAfter has elapsed since the last addition, whichever comes first.
// Generalized from the teacher's MessageBatch (which batched one
// concrete message type) into a type parameter so internal/audit can
// reuse it for audit events without a dependency on the old wire types.
package batch

import (
	"sync"
	"time"
)

// Batch accumulates items of type T and flushes them via FlushFunc.
type Batch[T any] struct {
	items      []T
	maxSize    int
	flushAfter time.Duration
	timer      *time.Timer
	mu         sync.Mutex
	flushFunc  func([]T)
	done       chan struct{}
}

// New creates a Batch that flushes at most maxSize items per call to
// flushFunc, or after flushAfter has elapsed since the last Add.
func New[T any](maxSize int, flushAfter time.Duration, flushFunc func([]T)) *Batch[T] {
	b := &Batch[T]{
		items:      make([]T, 0, maxSize),
		maxSize:    maxSize,
		flushAfter: flushAfter,
		flushFunc:  flushFunc,
		done:       make(chan struct{}),
	}
	b.timer = time.NewTimer(flushAfter)
	go b.startTimer()
	return b
}

// Add appends an item, flushing immediately if the batch is now full and
// otherwise debouncing the flush timer.
func (b *Batch[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)

	if len(b.items) >= b.maxSize {
		b.flush()
	} else {
		b.timer.Reset(b.flushAfter)
	}
}

// flush must be called with mu held.
func (b *Batch[T]) flush() {
	if len(b.items) == 0 {
		return
	}

	items := make([]T, len(b.items))
	copy(items, b.items)
	b.items = b.items[:0]

	go b.flushFunc(items)
}

func (b *Batch[T]) startTimer() {
	for {
		select {
		case <-b.timer.C:
			b.mu.Lock()
			b.flush()
			b.mu.Unlock()
		case <-b.done:
			return
		}
	}
}

// Stop halts the flush timer, flushes whatever remains, and releases the
// background goroutine. Stop must not be called more than once.
func (b *Batch[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}
	close(b.done)

	if len(b.items) > 0 {
		b.flush()
	}
}

// Size reports the number of items currently buffered.
func (b *Batch[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
