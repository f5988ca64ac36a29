package taskq

import (
	"time"
	"unicode"
)

// streamInto reveals a fully generated response incrementally: the text is
// split into word-aligned chunks which are appended to the buffer on a timer,
// giving the polling render loop a progressive reveal even though the
// underlying call returned in one shot.
//
// Runs on its own timer-driven goroutine so it never occupies a pool slot
// while sleeping between chunks.
func (q *Queue) streamInto(buf *GenerationBuffer, text string) {
	chunks := splitChunks(text, q.chunkChars)

	go func() {
		ticker := time.NewTicker(q.chunkDelay)
		defer ticker.Stop()
		for i, chunk := range chunks {
			if i > 0 {
				<-ticker.C
			}
			buf.Append(chunk)
		}
		buf.MarkDone(nil)
	}()
}

// splitChunks splits text into pieces of roughly target characters, extending
// each piece to the next word boundary so words are never torn apart
// mid-reveal. target <= 0 yields the whole text as a single chunk.
func splitChunks(text string, target int) []string {
	if target <= 0 || len(text) <= target {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	start := 0
	for start < len(runes) {
		end := start + target
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		// Extend to the next space so the cut lands on a word boundary.
		for end < len(runes) && !unicode.IsSpace(runes[end]) {
			end++
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end
	}
	return chunks
}
