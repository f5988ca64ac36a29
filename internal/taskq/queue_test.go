package taskq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	q := New(opts)
	t.Cleanup(q.Close)
	return q
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSubmitGenerationFillsBuffer(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		return "the full reply", nil
	}, false)

	buf := q.Buffer(id)
	if buf == nil {
		t.Fatal("Buffer() = nil immediately after submit")
	}

	waitFor(t, buf.Done, "generation to complete")

	text, _, errMsg := buf.Snapshot()
	if text != "the full reply" || errMsg != "" {
		t.Fatalf("Snapshot() = (%q, %q), want (%q, %q)", text, errMsg, "the full reply", "")
	}
}

func TestSubmitGenerationRecordsError(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		return "", errors.New("endpoint returned 503")
	}, false)

	buf := q.Buffer(id)
	waitFor(t, buf.Done, "generation to fail")

	if got := buf.Err(); got != "endpoint returned 503" {
		t.Fatalf("Err() = %q, want endpoint error", got)
	}
}

func TestSubmitGenerationRecoversPanic(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		panic("nil map write")
	}, false)

	buf := q.Buffer(id)
	waitFor(t, buf.Done, "panicked generation to complete")

	if got := buf.Err(); got == "" {
		t.Fatal("Err() = empty, want panic captured as error")
	}
}

func TestSubmitGenerationTaskTimeout(t *testing.T) {
	q := newTestQueue(t, Options{TaskTimeout: 10 * time.Millisecond})
	id := NewMessageID()

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, false)

	buf := q.Buffer(id)
	waitFor(t, buf.Done, "generation to hit deadline")

	if got := buf.Err(); got == "" {
		t.Fatal("Err() = empty, want deadline error")
	}
}

func TestSubmitGenerationSupersedesBuffer(t *testing.T) {
	q := newTestQueue(t, Options{Workers: 2})
	id := NewMessageID()

	release := make(chan struct{})
	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		<-release
		return "first", nil
	}, false)

	first := q.Buffer(id)

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		return "second", nil
	}, false)

	second := q.Buffer(id)
	if second == first {
		t.Fatal("resubmission did not replace the buffer")
	}

	waitFor(t, second.Done, "second generation to complete")
	close(release)
	waitFor(t, first.Done, "first generation to complete")

	// The live buffer only ever saw the second result.
	if got := second.ReadAll(); got != "second" {
		t.Fatalf("ReadAll() = %q, want %q", got, "second")
	}
	if q.Buffer(id) != second {
		t.Fatal("superseded generation replaced the live buffer")
	}
}

func TestPopSaveStatusOnce(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitSave(id, func(ctx context.Context) error {
		return errors.New("db down")
	})

	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		_, ok := q.saves[id]
		return ok
	}, "save status to land")

	status := q.PopSaveStatus(id)
	if status == nil {
		t.Fatal("PopSaveStatus() = nil, want failure status")
	}
	if status.OK || status.Error != "db down" {
		t.Fatalf("status = %+v, want failure with error %q", status, "db down")
	}

	if again := q.PopSaveStatus(id); again != nil {
		t.Fatalf("second PopSaveStatus() = %+v, want nil", again)
	}
}

func TestSubmitSaveSuccess(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitSave(id, func(ctx context.Context) error { return nil })

	var status *SaveStatus
	waitFor(t, func() bool {
		status = q.PopSaveStatus(id)
		return status != nil
	}, "save status to land")

	if !status.OK || status.Error != "" {
		t.Fatalf("status = %+v, want success", status)
	}
}

func TestSubmitSaveRecoversPanic(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitSave(id, func(ctx context.Context) error {
		panic("boom")
	})

	var status *SaveStatus
	waitFor(t, func() bool {
		status = q.PopSaveStatus(id)
		return status != nil
	}, "save status to land")

	if status.OK || status.Error == "" {
		t.Fatalf("status = %+v, want panic captured as failure", status)
	}
}

func TestPopHistoryResultOnce(t *testing.T) {
	q := newTestQueue(t, Options{})

	q.SubmitHistoryLoad("chat-1", func(ctx context.Context) (any, error) {
		return []string{"m1", "m2"}, nil
	})

	var payload any
	waitFor(t, func() bool {
		var ok bool
		payload, ok = q.PopHistoryResult("chat-1")
		return ok
	}, "history result to land")

	msgs, ok := payload.([]string)
	if !ok || len(msgs) != 2 {
		t.Fatalf("payload = %#v, want two messages", payload)
	}

	if _, ok := q.PopHistoryResult("chat-1"); ok {
		t.Fatal("second PopHistoryResult() reported a result")
	}
}

func TestHistoryLoadLastSubmissionWins(t *testing.T) {
	q := newTestQueue(t, Options{Workers: 2})

	release := make(chan struct{})
	q.SubmitHistoryLoad("chat-1", func(ctx context.Context) (any, error) {
		<-release
		return "stale", nil
	})
	q.SubmitHistoryLoad("chat-1", func(ctx context.Context) (any, error) {
		return "fresh", nil
	})

	var payload any
	waitFor(t, func() bool {
		var ok bool
		payload, ok = q.PopHistoryResult("chat-1")
		return ok
	}, "fresh result to land")

	if payload != "fresh" {
		t.Fatalf("payload = %v, want fresh result", payload)
	}

	// Let the superseded load finish; its completion must be discarded.
	close(release)
	time.Sleep(20 * time.Millisecond)
	if stale, ok := q.PopHistoryResult("chat-1"); ok {
		t.Fatalf("stale completion was stored: %v", stale)
	}
}

func TestHistoryLoadErrorStoresFailure(t *testing.T) {
	q := newTestQueue(t, Options{})

	q.SubmitHistoryLoad("chat-1", func(ctx context.Context) (any, error) {
		return nil, errors.New("db down")
	})

	var payload any
	waitFor(t, func() bool {
		var ok bool
		payload, ok = q.PopHistoryResult("chat-1")
		return ok
	}, "failure entry to land")

	failure, ok := payload.(LoadFailure)
	if !ok {
		t.Fatalf("payload = %#v, want LoadFailure", payload)
	}
	if failure.Err != "db down" {
		t.Fatalf("failure.Err = %q, want %q", failure.Err, "db down")
	}

	if _, ok := q.PopHistoryResult("chat-1"); ok {
		t.Fatal("second PopHistoryResult() reported a result")
	}
}

func TestReleaseBuffer(t *testing.T) {
	q := newTestQueue(t, Options{})
	id := NewMessageID()

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		return "reply", nil
	}, false)
	waitFor(t, q.Buffer(id).Done, "generation to complete")

	q.ReleaseBuffer(id)
	if q.Buffer(id) != nil {
		t.Fatal("Buffer() returned a released buffer")
	}
}

func TestAbandonedEntriesEvictedAfterTTL(t *testing.T) {
	q := newTestQueue(t, Options{EntryTTL: 20 * time.Millisecond})
	genID := NewMessageID()
	saveID := NewMessageID()

	q.SubmitGeneration(genID, func(ctx context.Context) (string, error) {
		return "reply", nil
	}, false)
	buf := q.Buffer(genID)
	q.SubmitSave(saveID, func(ctx context.Context) error { return nil })
	q.SubmitHistoryLoad("chat-1", func(ctx context.Context) (any, error) {
		return "transcript", nil
	})

	waitFor(t, buf.Done, "generation to complete")
	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		_, saveOK := q.saves[saveID]
		_, histOK := q.history["chat-1"]
		return saveOK && histOK
	}, "save status and history result to land")

	// No client ever pops these: the snapshot that submitted them is gone.
	time.Sleep(40 * time.Millisecond)

	if q.Buffer(genID) != nil {
		t.Fatal("completed buffer survived past its retention window")
	}
	if status := q.PopSaveStatus(saveID); status != nil {
		t.Fatalf("stale save status survived: %+v", status)
	}
	if payload, ok := q.PopHistoryResult("chat-1"); ok {
		t.Fatalf("stale history result survived: %v", payload)
	}
}

func TestInFlightGenerationSurvivesSweep(t *testing.T) {
	q := newTestQueue(t, Options{EntryTTL: 5 * time.Millisecond})
	id := NewMessageID()

	release := make(chan struct{})
	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		<-release
		return "reply", nil
	}, false)

	time.Sleep(20 * time.Millisecond)
	buf := q.Buffer(id)
	if buf == nil {
		t.Fatal("in-flight buffer was evicted")
	}

	close(release)
	waitFor(t, buf.Done, "generation to complete")
}

func TestSubmitNeverBlocksOnFullBacklog(t *testing.T) {
	q := newTestQueue(t, Options{Workers: 1})

	release := make(chan struct{})
	q.SubmitSave(NewMessageID(), func(ctx context.Context) error {
		<-release
		return nil
	})

	// The single worker is held, so submissions beyond the backlog
	// capacity must be dropped rather than block the caller.
	start := time.Now()
	for i := 0; i < 200; i++ {
		q.SubmitSave(NewMessageID(), func(ctx context.Context) error { return nil })
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("submissions blocked for %v with a full backlog", elapsed)
	}

	close(release)
}

func TestCloseDropsLateSubmissions(t *testing.T) {
	q := New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	q.Close()

	id := NewMessageID()
	q.SubmitSave(id, func(ctx context.Context) error { return nil })

	time.Sleep(10 * time.Millisecond)
	if status := q.PopSaveStatus(id); status != nil {
		t.Fatalf("save ran after close: %+v", status)
	}
}
