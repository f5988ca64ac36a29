package taskq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionsKey is the reserved history-load key for the sessions list (as
// opposed to a chat id).
const SessionsKey = "__sessions__"

// SaveStatus is a one-shot result cell for a persistence task. A new save
// attempt for the same message id overwrites the previous status.
type SaveStatus struct {
	OK    bool
	Error string
}

// saveEntry pairs a landed status with its landing time for eviction.
type saveEntry struct {
	status *SaveStatus
	at     time.Time
}

// historyEntry is a completed load tagged with its submission sequence so a
// slow, superseded load can be recognized and discarded.
type historyEntry struct {
	seq     uint64
	payload any
	at      time.Time
}

// LoadFailure is the history-store payload for a load that failed. It lands
// under the same sequence guard as a success, so the render loop can clear
// its loading flag instead of waiting forever on a result that never comes.
type LoadFailure struct {
	Err string
}

// GenerationWork produces the full response text for one assistant turn.
type GenerationWork func(ctx context.Context) (string, error)

// SaveWork persists one message (including its embedding).
type SaveWork func(ctx context.Context) error

// HistoryWork loads a chat transcript or the sessions list.
type HistoryWork func(ctx context.Context) (any, error)

// Options configures a Queue.
type Options struct {
	Workers     int           // worker pool size; defaults to 4
	TaskTimeout time.Duration // per-task deadline; 0 disables
	ChunkChars  int           // simulated streaming chunk size, characters
	ChunkDelay  time.Duration // simulated streaming inter-chunk delay
	EntryTTL    time.Duration // completed-entry retention before eviction; defaults to 5m
	Logger      *slog.Logger
}

// Queue runs submitted units of work on a bounded pool of workers, decoupled
// from the caller. Workers communicate results exclusively through the three
// poll stores (generation buffers, save statuses, history results); they never
// touch application state. Submit methods return immediately after enqueueing.
//
// One queue serves every client of the process, so a snapshot abandoned
// mid-flight (chat switched before a tick, tab closed) would strand its
// entries forever. Completed entries older than EntryTTL are therefore
// evicted lazily on store access; in-flight generations are never evicted.
//
// The queue is an injectable value, not package state: tests instantiate
// isolated queues per case.
type Queue struct {
	tasks      chan func()
	timeout    time.Duration
	chunkChars int
	chunkDelay time.Duration
	entryTTL   time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	buffers    map[string]*GenerationBuffer
	saves      map[string]saveEntry
	history    map[string]historyEntry
	historySeq map[string]uint64
	closed     bool

	wg sync.WaitGroup
}

// New creates a queue and starts its worker pool.
func New(opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	chunkChars := opts.ChunkChars
	if chunkChars <= 0 {
		chunkChars = 24
	}
	chunkDelay := opts.ChunkDelay
	if chunkDelay <= 0 {
		chunkDelay = 30 * time.Millisecond
	}
	entryTTL := opts.EntryTTL
	if entryTTL <= 0 {
		entryTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		tasks:      make(chan func(), 64),
		timeout:    opts.TaskTimeout,
		chunkChars: chunkChars,
		chunkDelay: chunkDelay,
		entryTTL:   entryTTL,
		logger:     logger,
		buffers:    make(map[string]*GenerationBuffer),
		saves:      make(map[string]saveEntry),
		history:    make(map[string]historyEntry),
		historySeq: make(map[string]uint64),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Close stops accepting new work and waits for in-flight tasks to finish.
// The channel is closed under the same mutex enqueue sends under, so a
// Submit racing Close can never hit a closed channel.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.runTask(task)
	}
}

// runTask executes one unit of work, converting panics into a log entry
// rather than letting them cross the worker boundary.
func (q *Queue) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "panic", r)
		}
	}()
	task()
}

// enqueue adds a task unless the queue is closed or its backlog is full.
// Submits must never block the control path, so a full backlog drops the
// task with a warning instead of waiting for a worker.
func (q *Queue) enqueue(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("task submitted after queue close, dropped")
		return
	}
	select {
	case q.tasks <- task:
	default:
		q.logger.Warn("task backlog full, dropped")
	}
}

// taskContext derives the context a unit of work runs under. The deadline
// converts a hung collaborator call into an ordinary captured error so the
// queue's failure path handles it like any other.
func (q *Queue) taskContext() (context.Context, context.CancelFunc) {
	if q.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), q.timeout)
}

// SubmitGeneration schedules work producing an assistant reply. A fresh
// buffer replaces any previous one for the message id, so a superseded
// generation keeps writing into its own orphaned buffer and is ignored.
// With simulateStream the completed text is revealed incrementally; otherwise
// it is appended in one piece.
func (q *Queue) SubmitGeneration(messageID string, work GenerationWork, simulateStream bool) {
	buf := NewGenerationBuffer()
	q.mu.Lock()
	q.sweepLocked(time.Now())
	q.buffers[messageID] = buf
	q.mu.Unlock()

	q.enqueue(func() {
		ctx, cancel := q.taskContext()
		defer cancel()

		text, err := q.safeGenerate(ctx, work)
		if err != nil {
			q.logger.Debug("generation failed", "message_id", messageID, "error", err)
			buf.MarkDone(err)
			return
		}
		if simulateStream {
			q.streamInto(buf, text)
			return
		}
		buf.Append(text)
		buf.MarkDone(nil)
	})
}

// SubmitSave schedules a persistence task. The outcome lands in the save
// status store under the message id, overwriting any earlier attempt.
func (q *Queue) SubmitSave(messageID string, work SaveWork) {
	q.enqueue(func() {
		ctx, cancel := q.taskContext()
		defer cancel()

		status := &SaveStatus{OK: true}
		if err := q.safeSave(ctx, work); err != nil {
			q.logger.Debug("save failed", "message_id", messageID, "error", err)
			status = &SaveStatus{OK: false, Error: err.Error()}
		}

		q.mu.Lock()
		q.saves[messageID] = saveEntry{status: status, at: time.Now()}
		q.mu.Unlock()
	})
}

// SubmitHistoryLoad schedules a load for a chat id (or SessionsKey). The last
// submission for a key wins: each submission is tagged with a monotonic
// sequence number and a completion is discarded when a newer submission for
// the same key exists. A failed load stores a LoadFailure payload.
func (q *Queue) SubmitHistoryLoad(key string, work HistoryWork) {
	q.mu.Lock()
	q.historySeq[key]++
	seq := q.historySeq[key]
	q.mu.Unlock()

	q.enqueue(func() {
		ctx, cancel := q.taskContext()
		defer cancel()

		payload, err := q.safeLoad(ctx, work)
		if err != nil {
			// A failure lands as a LoadFailure entry under the same guard,
			// so the consumer sees a definitive outcome instead of waiting
			// on a result that never arrives.
			q.logger.Warn("history load failed", "key", key, "error", err)
			payload = LoadFailure{Err: err.Error()}
		}

		q.mu.Lock()
		defer q.mu.Unlock()
		if seq != q.historySeq[key] {
			q.logger.Debug("discarding stale history result", "key", key, "seq", seq)
			return
		}
		q.history[key] = historyEntry{seq: seq, payload: payload, at: time.Now()}
	})
}

// safeGenerate runs generation work, converting a panic into an error.
func (q *Queue) safeGenerate(ctx context.Context, work GenerationWork) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()
	return work(ctx)
}

func (q *Queue) safeSave(ctx context.Context, work SaveWork) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save panicked: %v", r)
		}
	}()
	return work(ctx)
}

func (q *Queue) safeLoad(ctx context.Context, work HistoryWork) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("load panicked: %v", r)
		}
	}()
	return work(ctx)
}

// Buffer returns the generation buffer for a message id, or nil when no
// generation has been submitted for it (or it has been released or evicted).
func (q *Queue) Buffer(messageID string) *GenerationBuffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweepLocked(time.Now())
	return q.buffers[messageID]
}

// ReleaseBuffer drops the buffer for a message whose content has been
// confirmed saved, keeping the store from growing unbounded.
func (q *Queue) ReleaseBuffer(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.buffers, messageID)
}

// PopSaveStatus returns and clears the save status for a message id. A second
// call returns nil until another save attempt for that id completes.
func (q *Queue) PopSaveStatus(messageID string) *SaveStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweepLocked(time.Now())
	entry, ok := q.saves[messageID]
	if !ok {
		return nil
	}
	delete(q.saves, messageID)
	return entry.status
}

// PopHistoryResult returns and clears the most recent completed load for a
// key. ok is false when nothing has completed since the last pop.
func (q *Queue) PopHistoryResult(key string) (payload any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweepLocked(time.Now())
	entry, ok := q.history[key]
	if !ok {
		return nil, false
	}
	delete(q.history, key)
	return entry.payload, true
}

// sweepLocked evicts completed entries older than the retention window.
// Snapshots travel with clients, so a client that abandoned its snapshot
// never pops its entries; age is the only signal they are orphaned.
// In-flight generations are left alone. Callers hold q.mu.
func (q *Queue) sweepLocked(now time.Time) {
	for id, buf := range q.buffers {
		if doneAt, done := buf.finishedAt(); done && now.Sub(doneAt) > q.entryTTL {
			delete(q.buffers, id)
		}
	}
	for id, entry := range q.saves {
		if now.Sub(entry.at) > q.entryTTL {
			delete(q.saves, id)
		}
	}
	for key, entry := range q.history {
		if now.Sub(entry.at) > q.entryTTL {
			delete(q.history, key)
		}
	}
}
