package taskq

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSplitChunksWordBoundaries(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog near the river bank"
	chunks := splitChunks(text, 10)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Fatalf("chunks do not reassemble input:\n got %q\nwant %q", got, text)
	}
	// Cuts land on word boundaries: every chunk after the first starts with
	// the space that ended the previous word.
	for i, chunk := range chunks[1:] {
		if !strings.HasPrefix(chunk, " ") {
			t.Fatalf("chunk %d starts mid-word: %q", i+1, chunk)
		}
	}
}

func TestSplitChunksShortText(t *testing.T) {
	chunks := splitChunks("hi", 24)
	if len(chunks) != 1 || chunks[0] != "hi" {
		t.Fatalf("splitChunks short text = %#v, want single chunk", chunks)
	}
}

func TestSplitChunksNoTarget(t *testing.T) {
	chunks := splitChunks("a b c", 0)
	if len(chunks) != 1 || chunks[0] != "a b c" {
		t.Fatalf("splitChunks target 0 = %#v, want whole text", chunks)
	}
}

func TestSimulatedStreamingRevealsMonotonically(t *testing.T) {
	q := newTestQueue(t, Options{ChunkChars: 8, ChunkDelay: time.Millisecond})
	id := NewMessageID()
	text := "a reasonably long response revealed one chunk at a time"

	q.SubmitGeneration(id, func(ctx context.Context) (string, error) {
		return text, nil
	}, true)

	buf := q.Buffer(id)
	prev := ""
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, done, errMsg := buf.Snapshot()
		if errMsg != "" {
			t.Fatalf("unexpected error: %q", errMsg)
		}
		if !strings.HasPrefix(got, prev) {
			t.Fatalf("reveal not monotonic: %q does not extend %q", got, prev)
		}
		prev = got
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for streaming to finish")
		}
		time.Sleep(time.Millisecond)
	}

	if prev != text {
		t.Fatalf("final text = %q, want %q", prev, text)
	}
}
