package taskq

import (
	"strings"
	"sync"
	"time"
)

// GenerationBuffer accumulates partial output text for one in-flight
// generation so the render loop can poll it without blocking on the
// underlying call.
//
// Concurrency: exactly one writer (the worker executing the generation task),
// many readers (render loop ticks). All methods are safe for concurrent use.
type GenerationBuffer struct {
	mu     sync.Mutex
	text   strings.Builder
	done   bool
	doneAt time.Time
	err    string
}

// NewGenerationBuffer creates an empty buffer.
func NewGenerationBuffer() *GenerationBuffer {
	return &GenerationBuffer{}
}

// Append adds a chunk to the buffer. Appends after MarkDone are dropped.
func (b *GenerationBuffer) Append(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.text.WriteString(chunk)
}

// MarkDone flags the buffer as complete. The first call wins: repeated calls
// are no-ops, and a later error never replaces the first recorded one.
func (b *GenerationBuffer) MarkDone(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.doneAt = time.Now()
	if err != nil {
		b.err = err.Error()
	}
}

// finishedAt returns when the buffer completed; done is false while the
// producing task is still running.
func (b *GenerationBuffer) finishedAt() (at time.Time, done bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doneAt, b.done
}

// ReadAll returns the concatenation of all chunks appended so far.
// Successive calls return prefix-extensions of earlier results.
func (b *GenerationBuffer) ReadAll() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

// Done reports whether the producing task has completed.
func (b *GenerationBuffer) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Err returns the recorded failure message, or "" if the task has not
// failed (or not finished).
func (b *GenerationBuffer) Err() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Snapshot returns text, completion flag and error in one atomic read so a
// poller never observes a done flag without the final text.
func (b *GenerationBuffer) Snapshot() (text string, done bool, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String(), b.done, b.err
}
